package config

import (
	"net/url"
	"strings"
)

// Validate checks the configuration and returns every problem found.
func (c Config) Validate() ConfigurationErrorCollection {
	var errs ConfigurationErrorCollection

	if strings.TrimSpace(c.ServiceID) == "" {
		errs.AddFieldError("serviceId", "is required")
	}
	if strings.TrimSpace(c.ClientID) == "" {
		errs.AddFieldError("clientId", "is required")
	}

	validateURL(&errs, "authUrl", c.AuthURL, true)
	validateURL(&errs, "apiUrl", c.APIURL, false)
	validateURL(&errs, "server.externalUrl", c.Server.ExternalURL, true)

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs.AddFieldError("server.port", "must be between 0 and 65535")
	}
	if strings.Trim(c.Server.CallbackPath, "/") == "" {
		errs.AddFieldError("server.callbackPath", "is required")
	} else if c.Server.CallbackPath == "signin" || strings.Trim(c.Server.CallbackPath, "/") == "signin" {
		errs.AddFieldError("server.callbackPath", "must not collide with the sign-in path")
	}

	if c.Login.Timeout <= 0 {
		errs.AddFieldError("login.timeout", "must be positive")
	}
	if c.Login.CloseDelay < 0 {
		errs.AddFieldError("login.closeDelay", "must not be negative")
	}

	return errs
}

func validateURL(errs *ConfigurationErrorCollection, field, value string, required bool) {
	if value == "" {
		if required {
			errs.AddFieldError(field, "is required")
		}
		return
	}
	u, err := url.Parse(value)
	if err != nil || u.Scheme == "" || u.Host == "" {
		errs.AddFieldError(field, "must be an absolute URL")
		return
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		errs.AddFieldError(field, "must use http or https")
	}
}
