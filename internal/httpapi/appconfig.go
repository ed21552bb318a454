package httpapi

import "net/http"

// AppConfig is the branding and feature set served to the web client.
type AppConfig struct {
	PageTitle                 string `json:"pageTitle"`
	PageDescription           string `json:"pageDescription"`
	CompanyName               string `json:"companyName"`
	SupportsChatInput         bool   `json:"supportsChatInput"`
	SupportsVideoInput        bool   `json:"supportsVideoInput"`
	SupportsScreenShare       bool   `json:"supportsScreenShare"`
	IsPreConnectBufferEnabled bool   `json:"isPreConnectBufferEnabled"`
	Logo                      string `json:"logo"`
	StartButtonText           string `json:"startButtonText"`
	Accent                    string `json:"accent"`
	LogoDark                  string `json:"logoDark"`
	AccentDark                string `json:"accentDark"`
}

// DefaultAppConfig is served when Options.AppConfig is zero.
var DefaultAppConfig = AppConfig{
	PageTitle:                 "CalmCall - Financial Wellness Assistant",
	PageDescription:           "Your compassionate financial wellness companion",
	CompanyName:               "CalmCall",
	SupportsChatInput:         true,
	SupportsVideoInput:        true,
	SupportsScreenShare:       false,
	IsPreConnectBufferEnabled: true,
	Logo:                      "/lk-logo.svg",
	StartButtonText:           "Start Financial Consultation",
	Accent:                    "#10b981",
	LogoDark:                  "/lk-logo-dark.svg",
	AccentDark:                "#34d399",
}

func (s *Server) appConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.opts.AppConfig)
}
