package sacco

type LoginResponse struct {
	Tokens Tokens `json:"tokens"`
	User   User   `json:"user"`
}

type SignupResponse struct {
	Message string `json:"message"`
	User    User   `json:"user"`
}

// MessageResponse covers the endpoints that answer with a bare message or detail.
type MessageResponse struct {
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

func (r MessageResponse) Text() string {
	if r.Message != "" {
		return r.Message
	}

	return r.Detail
}

// RepaymentDecisionResponse is either a message or the updated repayment.
type RepaymentDecisionResponse struct {
	Message string `json:"message"`
	Repayment
}

type pagedUsers struct {
	Results []User `json:"results"`
}
