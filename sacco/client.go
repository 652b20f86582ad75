package sacco

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Client struct {
	httpClient http.Client
	baseURL    string
}

func NewClient(baseURL string) (Client, error) {
	transport := &http.Transport{}

	envProxy := os.Getenv("HTTP_PROXY")
	if envProxy != "" {
		proxy, err := url.Parse(envProxy)
		if err != nil {
			return Client{}, fmt.Errorf("unable to parse HTTP_PROXY as a url: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxy)
	}

	return Client{
		httpClient: http.Client{
			Transport: transport,
			Timeout:   time.Second * 10,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

// executeRequest is the only place the client talks to the network. A request is attempted once;
// a failure is returned to the caller as is.
func executeRequest(ctx context.Context, client Client, method string, url string, token string, body []byte, decodeResponse interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	request, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("unable to create a new request with context: %w", err)
	}

	request.Header.Add("Content-Type", "application/json")
	request.Header.Add("Accept", "application/json")
	request.Header.Add("X-Request-ID", uuid.NewString())
	if token != "" {
		request.Header.Add("Authorization", fmt.Sprintf("Bearer %s", token))
	}

	response, err := client.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("unable to execute http request: %w", err)
	}

	responseBody, err := io.ReadAll(response.Body)
	response.Body.Close()
	if err != nil {
		return fmt.Errorf("unable to read response body: %w", err)
	}

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		if decodeResponse == nil || len(bytes.TrimSpace(responseBody)) == 0 {
			return nil
		}

		if err := json.Unmarshal(responseBody, decodeResponse); err != nil {
			log.Printf("[SACCO] unable to decode response of \"%s %s\": %+v", method, url, err)
			return UnableToDecodeResponseError
		}

		return nil
	}

	return newAPIError(response.StatusCode, responseBody)
}

func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = strings.TrimRight(baseURL, "/")
}

func (c Client) BaseURL() string {
	return c.baseURL
}

func (c Client) endpoint(path string, query url.Values) string {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	return u
}

// Login exchanges a username and password for a token pair and the user's profile
func (c Client) Login(ctx context.Context, username, password string) (LoginResponse, error) {
	request := LoginRequest{
		Username: username,
		Password: password,
	}
	requestJson, err := json.Marshal(request)
	if err != nil {
		return LoginResponse{}, fmt.Errorf("unable to marshal login request: %w", err)
	}

	response := LoginResponse{}
	err = executeRequest(ctx, c, http.MethodPost, c.endpoint("/api/login/", nil), "", requestJson, &response)
	if err != nil {
		return LoginResponse{}, fmt.Errorf("unable to login \"%s\": %w", username, err)
	}

	if response.Tokens.Access == "" {
		return LoginResponse{}, MissingAccessTokenError
	}

	return response, nil
}

// Signup registers a new member. The member cannot log in until the secretary approves them.
func (c Client) Signup(ctx context.Context, request SignupRequest) (SignupResponse, error) {
	requestJson, err := json.Marshal(request)
	if err != nil {
		return SignupResponse{}, fmt.Errorf("unable to marshal signup request: %w", err)
	}

	response := SignupResponse{}
	err = executeRequest(ctx, c, http.MethodPost, c.endpoint("/api/signup/", nil), "", requestJson, &response)
	if err != nil {
		return SignupResponse{}, fmt.Errorf("unable to sign up \"%s\": %w", request.PhoneNumber, err)
	}

	return response, nil
}

type AuthorizedClient struct {
	client Client
	token  string
}

func NewAuthorizedClient(client Client, token string) AuthorizedClient {
	return AuthorizedClient{
		client: client,
		token:  token,
	}
}

func (ac AuthorizedClient) Token() string {
	return ac.token
}

// ////////////////////////////////////////////
// /// BALANCE
// ////////////////////////////////////////////

func (ac AuthorizedClient) GetBalance(ctx context.Context) (Balance, error) {
	response := Balance{}
	err := executeRequest(ctx, ac.client, http.MethodGet, ac.client.endpoint("/api/balance/", nil), ac.token, nil, &response)
	if err != nil {
		return Balance{}, fmt.Errorf("unable to get balance: %w", err)
	}

	return response, nil
}

// ////////////////////////////////////////////
// /// TRANSACTIONS
// ////////////////////////////////////////////

func (ac AuthorizedClient) GetTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error) {
	query := url.Values{}
	if filter.Status != "" {
		query.Set("status", filter.Status)
	}
	if filter.UserID != "" {
		query.Set("user_id", filter.UserID)
	}

	var response []Transaction
	err := executeRequest(ctx, ac.client, http.MethodGet, ac.client.endpoint("/api/transactions/", query), ac.token, nil, &response)
	if err != nil {
		return nil, fmt.Errorf("unable to get transactions: %w", err)
	}

	return response, nil
}

func (ac AuthorizedClient) GetMyTransactions(ctx context.Context) ([]Transaction, error) {
	var response []Transaction
	err := executeRequest(ctx, ac.client, http.MethodGet, ac.client.endpoint("/api/transactions/my/", nil), ac.token, nil, &response)
	if err != nil {
		return nil, fmt.Errorf("unable to get my transactions: %w", err)
	}

	return response, nil
}

func (ac AuthorizedClient) CreateTransaction(ctx context.Context, request CreateTransactionRequest) (Transaction, error) {
	requestJson, err := json.Marshal(request)
	if err != nil {
		log.Printf("ERROR marshalling create transaction request: %+v", request)
		return Transaction{}, fmt.Errorf("unable to marshal create transaction request: %w", err)
	}

	response := Transaction{}
	err = executeRequest(ctx, ac.client, http.MethodPost, ac.client.endpoint("/api/transactions/create/", nil), ac.token, requestJson, &response)
	if err != nil {
		return Transaction{}, fmt.Errorf("unable to create %s for user \"%s\": %w", request.TransactionType, request.User, err)
	}

	return response, nil
}

func (ac AuthorizedClient) DecideTransaction(ctx context.Context, transactionID, action string) error {
	requestJson, err := json.Marshal(ActionRequest{Action: action})
	if err != nil {
		return fmt.Errorf("unable to marshal transaction action: %w", err)
	}

	path := fmt.Sprintf("/api/transactions/%s/", url.PathEscape(transactionID))
	err = executeRequest(ctx, ac.client, http.MethodPut, ac.client.endpoint(path, nil), ac.token, requestJson, nil)
	if err != nil {
		return fmt.Errorf("unable to %s transaction \"%s\": %w", action, transactionID, err)
	}

	return nil
}

// ////////////////////////////////////////////
// /// USERS
// ////////////////////////////////////////////

func (ac AuthorizedClient) GetUsers(ctx context.Context) ([]User, error) {
	var raw json.RawMessage
	err := executeRequest(ctx, ac.client, http.MethodGet, ac.client.endpoint("/api/users/", nil), ac.token, nil, &raw)
	if err != nil {
		return nil, fmt.Errorf("unable to get users: %w", err)
	}

	users, err := decodeUsers(raw)
	if err != nil {
		return nil, fmt.Errorf("unable to get users: %w", err)
	}

	return users, nil
}

// GetPendingUsers returns members waiting for approval. The endpoint answers with either a bare
// list or a paged {"results": [...]} object.
func (ac AuthorizedClient) GetPendingUsers(ctx context.Context) ([]User, error) {
	var raw json.RawMessage
	err := executeRequest(ctx, ac.client, http.MethodGet, ac.client.endpoint("/api/users/pending/", nil), ac.token, nil, &raw)
	if err != nil {
		return nil, fmt.Errorf("unable to get pending users: %w", err)
	}

	users, err := decodeUsers(raw)
	if err != nil {
		return nil, fmt.Errorf("unable to get pending users: %w", err)
	}

	return users, nil
}

func decodeUsers(raw json.RawMessage) ([]User, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	if trimmed[0] == '{' {
		paged := pagedUsers{}
		if err := json.Unmarshal(trimmed, &paged); err != nil {
			log.Printf("[SACCO] unable to decode paged users: %+v", err)
			return nil, UnableToDecodeResponseError
		}
		return paged.Results, nil
	}

	var users []User
	if err := json.Unmarshal(trimmed, &users); err != nil {
		log.Printf("[SACCO] unable to decode users: %+v", err)
		return nil, UnableToDecodeResponseError
	}

	return users, nil
}

func (ac AuthorizedClient) DecideUser(ctx context.Context, userID, action string) (MessageResponse, error) {
	requestJson, err := json.Marshal(ActionRequest{Action: action})
	if err != nil {
		return MessageResponse{}, fmt.Errorf("unable to marshal user action: %w", err)
	}

	response := MessageResponse{}
	path := fmt.Sprintf("/api/users/approve/%s/", url.PathEscape(userID))
	err = executeRequest(ctx, ac.client, http.MethodPatch, ac.client.endpoint(path, nil), ac.token, requestJson, &response)
	if err != nil {
		return MessageResponse{}, fmt.Errorf("unable to %s user \"%s\": %w", action, userID, err)
	}

	return response, nil
}

// ////////////////////////////////////////////
// /// LOANS
// ////////////////////////////////////////////

func (ac AuthorizedClient) GetLoans(ctx context.Context, filter LoanFilter) ([]Loan, error) {
	query := url.Values{}
	if filter.Status != "" {
		query.Set("status", filter.Status)
	}
	if filter.UserID != "" {
		query.Set("user_id", filter.UserID)
	}

	var response []Loan
	err := executeRequest(ctx, ac.client, http.MethodGet, ac.client.endpoint("/api/loans/", query), ac.token, nil, &response)
	if err != nil {
		return nil, fmt.Errorf("unable to get loans: %w", err)
	}

	return response, nil
}

func (ac AuthorizedClient) DecideLoan(ctx context.Context, loanID int64, action string) error {
	requestJson, err := json.Marshal(ActionRequest{Action: action})
	if err != nil {
		return fmt.Errorf("unable to marshal loan action: %w", err)
	}

	path := fmt.Sprintf("/api/loans/%d/approve/", loanID)
	err = executeRequest(ctx, ac.client, http.MethodPut, ac.client.endpoint(path, nil), ac.token, requestJson, nil)
	if err != nil {
		return fmt.Errorf("unable to %s loan %d: %w", action, loanID, err)
	}

	return nil
}

func (ac AuthorizedClient) GetEligibility(ctx context.Context, userID string) (Eligibility, error) {
	query := url.Values{}
	query.Set("user_id", userID)

	response := Eligibility{}
	err := executeRequest(ctx, ac.client, http.MethodGet, ac.client.endpoint("/api/loan/eligibility/", query), ac.token, nil, &response)
	if err != nil {
		return Eligibility{}, fmt.Errorf("unable to get loan eligibility for user \"%s\": %w", userID, err)
	}

	return response, nil
}

func (ac AuthorizedClient) RequestLoan(ctx context.Context, request LoanRequest) (Loan, error) {
	requestJson, err := json.Marshal(request)
	if err != nil {
		log.Printf("ERROR marshalling loan request: %+v", request)
		return Loan{}, fmt.Errorf("unable to marshal loan request: %w", err)
	}

	query := url.Values{}
	query.Set("user_id", request.Borrower)

	response := Loan{}
	err = executeRequest(ctx, ac.client, http.MethodPost, ac.client.endpoint("/api/loans/request/", query), ac.token, requestJson, &response)
	if err != nil {
		return Loan{}, fmt.Errorf("unable to request loan for user \"%s\": %w", request.Borrower, err)
	}

	return response, nil
}

// ////////////////////////////////////////////
// /// GUARANTORS
// ////////////////////////////////////////////

func (ac AuthorizedClient) GetGuarantorRequests(ctx context.Context) ([]Loan, error) {
	var response []Loan
	err := executeRequest(ctx, ac.client, http.MethodGet, ac.client.endpoint("/api/guarantor/requests/", nil), ac.token, nil, &response)
	if err != nil {
		return nil, fmt.Errorf("unable to get guarantor requests: %w", err)
	}

	return response, nil
}

func (ac AuthorizedClient) DecideGuarantee(ctx context.Context, loanID int64, decision string) (GuarantorAction, error) {
	request := GuarantorDecisionRequest{
		LoanID:   loanID,
		Decision: decision,
	}
	requestJson, err := json.Marshal(request)
	if err != nil {
		return GuarantorAction{}, fmt.Errorf("unable to marshal guarantor decision: %w", err)
	}

	response := GuarantorAction{}
	err = executeRequest(ctx, ac.client, http.MethodPut, ac.client.endpoint("/api/guarantor/decision/", nil), ac.token, requestJson, &response)
	if err != nil {
		return GuarantorAction{}, fmt.Errorf("unable to %s guarantee for loan %d: %w", decision, loanID, err)
	}

	return response, nil
}

// ////////////////////////////////////////////
// /// REPAYMENTS
// ////////////////////////////////////////////

func (ac AuthorizedClient) GetRepayments(ctx context.Context) ([]Repayment, error) {
	var response []Repayment
	err := executeRequest(ctx, ac.client, http.MethodGet, ac.client.endpoint("/api/repayments/", nil), ac.token, nil, &response)
	if err != nil {
		return nil, fmt.Errorf("unable to get repayments: %w", err)
	}

	return response, nil
}

func (ac AuthorizedClient) CreateRepayment(ctx context.Context, request CreateRepaymentRequest) (Repayment, error) {
	requestJson, err := json.Marshal(request)
	if err != nil {
		log.Printf("ERROR marshalling create repayment request: %+v", request)
		return Repayment{}, fmt.Errorf("unable to marshal create repayment request: %w", err)
	}

	response := Repayment{}
	err = executeRequest(ctx, ac.client, http.MethodPost, ac.client.endpoint("/api/repayments/create/", nil), ac.token, requestJson, &response)
	if err != nil {
		return Repayment{}, fmt.Errorf("unable to create repayment for loan %d: %w", request.LoanID, err)
	}

	return response, nil
}

func (ac AuthorizedClient) DecideRepayment(ctx context.Context, repaymentID int64, action string) (RepaymentDecisionResponse, error) {
	requestJson, err := json.Marshal(ActionRequest{Action: action})
	if err != nil {
		return RepaymentDecisionResponse{}, fmt.Errorf("unable to marshal repayment action: %w", err)
	}

	response := RepaymentDecisionResponse{}
	path := fmt.Sprintf("/api/repayments/%d/approve/", repaymentID)
	err = executeRequest(ctx, ac.client, http.MethodPatch, ac.client.endpoint(path, nil), ac.token, requestJson, &response)
	if err != nil {
		return RepaymentDecisionResponse{}, fmt.Errorf("unable to %s repayment %d: %w", action, repaymentID, err)
	}

	return response, nil
}
