package tomikal

import (
	"errors"

	"tomikal/sacco"
)

type NoticeKind int

const (
	NoticeInfo NoticeKind = iota
	NoticeSuccess
	NoticeValidation
	NoticeError
	NoticeSessionExpired
)

func (k NoticeKind) String() string {
	return [...]string{"info", "success", "validation", "error", "session_expired"}[k]
}

// Notice is a dismissible notification. Route is set when the notice should move the member elsewhere.
type Notice struct {
	Kind    NoticeKind `json:"kind"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
	Route   Route      `json:"route,omitempty"`
}

func Success(message string, route Route) Notice {
	return Notice{Kind: NoticeSuccess, Title: "Success", Message: message, Route: route}
}

// NoticeFor turns any error returned by a screen into what the member sees. fallback is the
// screen's own wording for a failure the server did not explain.
func NoticeFor(err error, fallback string) Notice {
	if err == nil {
		return Notice{}
	}

	if errors.Is(err, ErrSessionExpired) || errors.Is(err, sacco.UnauthorizedError) {
		return Notice{
			Kind:    NoticeSessionExpired,
			Title:   "Session Expired",
			Message: msgSessionExpired,
			Route:   RouteLogin,
		}
	}

	permissionErr := &PermissionError{}
	if errors.As(err, &permissionErr) {
		return Notice{
			Kind:    NoticeError,
			Title:   "Access Denied",
			Message: permissionErr.Message,
			Route:   RouteDashboard,
		}
	}

	formErr := &FormError{}
	if errors.As(err, &formErr) {
		return Notice{
			Kind:    NoticeValidation,
			Title:   "Validation",
			Message: formErr.Message,
		}
	}

	if errors.Is(err, sacco.MissingAccessTokenError) {
		return Notice{Kind: NoticeError, Title: "Error", Message: sacco.MissingAccessTokenError.Error()}
	}

	apiErr := &sacco.APIError{}
	if errors.As(err, &apiErr) {
		if msg := apiErr.Message(); msg != "" {
			return Notice{Kind: NoticeError, Title: "Error", Message: msg}
		}
	}

	return Notice{Kind: NoticeError, Title: "Error", Message: fallback}
}

// serverMessage prefers the "error" key of a server error body, the way the approval screens read it.
func serverMessage(err error, fallback string) string {
	apiErr := &sacco.APIError{}
	if errors.As(err, &apiErr) {
		if msg := apiErr.Lookup("error"); msg != "" {
			return msg
		}
	}

	return fallback
}
