package ratelimit

// Profile is a named rate-limit policy for one class of sensitive operation.
type Profile struct {
	Name          string `json:"name"`
	Limit         int    `json:"limit"`
	WindowSeconds int    `json:"window_seconds"`
}

// Fixed catalogue of profiles. Callers reference these by name; there is no
// runtime registration.
var (
	ProfileAuth          = Profile{Name: "auth", Limit: 5, WindowSeconds: 60}
	ProfileAnalysis      = Profile{Name: "analysis", Limit: 10, WindowSeconds: 60}
	ProfileAPI           = Profile{Name: "api", Limit: 100, WindowSeconds: 60}
	ProfileHealth        = Profile{Name: "health", Limit: 1000, WindowSeconds: 60}
	ProfileSharePassword = Profile{Name: "share_password", Limit: 5, WindowSeconds: 300}
	ProfileOAuth         = Profile{Name: "oauth", Limit: 10, WindowSeconds: 60}
)

var profiles = map[string]Profile{
	ProfileAuth.Name:          ProfileAuth,
	ProfileAnalysis.Name:      ProfileAnalysis,
	ProfileAPI.Name:           ProfileAPI,
	ProfileHealth.Name:        ProfileHealth,
	ProfileSharePassword.Name: ProfileSharePassword,
	ProfileOAuth.Name:         ProfileOAuth,
}

// ProfileByName resolves a profile from the fixed catalogue.
func ProfileByName(name string) (Profile, bool) {
	p, ok := profiles[name]
	return p, ok
}
