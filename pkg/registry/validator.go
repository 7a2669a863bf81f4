package registry

import "log/slog"

// PropertyValue is a configuration property (an environment variable or
// -D-style override) together with the name used to refer to it in warnings.
type PropertyValue struct {
	Name  string
	Value string
}

// AuthProperty is the optional auth section of a build file. The descriptor
// strings name the username/password fields in warnings, e.g.
// "to.auth.username".
type AuthProperty struct {
	Username           string
	Password           string
	UsernameDescriptor string
	PasswordDescriptor string
}

// ResolveCredential picks one credential from configuration properties and
// an auth section. A complete property pair wins outright; a partial pair is
// warned about and ignored, falling back to the auth section; a partial auth
// section is likewise warned about and ignored. A credential is only ever a
// complete pair from a single source, never merged field-by-field.
func ResolveCredential(log *slog.Logger, username, password PropertyValue, auth AuthProperty) (*Credential, Source) {
	if username.Value != "" && password.Value != "" {
		return &Credential{Username: username.Value, Password: password.Value}, SourceFlag
	}
	if username.Value != "" {
		log.Warn(username.Name + " is set, but " + password.Name + " is not; attempting other authentication methods")
	}
	if password.Value != "" {
		log.Warn(password.Name + " is set, but " + username.Name + " is not; attempting other authentication methods")
	}

	if auth.Username != "" && auth.Password != "" {
		return &Credential{Username: auth.Username, Password: auth.Password}, SourceAuthConfig
	}
	if auth.Username != "" {
		log.Warn(auth.PasswordDescriptor + " is missing from build configuration; ignoring auth section")
	}
	if auth.Password != "" {
		log.Warn(auth.UsernameDescriptor + " is missing from build configuration; ignoring auth section")
	}
	return nil, ""
}
