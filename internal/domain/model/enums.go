package model

// TargetType identifies the kind of managed entity a credential belongs to.
type TargetType string

const (
	TargetTypeDevice  TargetType = "device"
	TargetTypeHost    TargetType = "host"
	TargetTypeService TargetType = "service"
	TargetTypeVM      TargetType = "vm"
)

// Valid reports whether t is one of the known target types.
func (t TargetType) Valid() bool {
	switch t {
	case TargetTypeDevice, TargetTypeHost, TargetTypeService, TargetTypeVM:
		return true
	}
	return false
}

// AuthType classifies which secret fields a credential record carries.
type AuthType string

const (
	AuthTypePassword AuthType = "password"
	AuthTypeKey      AuthType = "key"
	AuthTypeToken    AuthType = "token"
	AuthTypeBoth     AuthType = "both" // Password and SSH key path.
)

// Valid reports whether a is one of the known auth types.
func (a AuthType) Valid() bool {
	switch a {
	case AuthTypePassword, AuthTypeKey, AuthTypeToken, AuthTypeBoth:
		return true
	}
	return false
}

// DeriveAuthType picks the auth type implied by which secret fields are present.
// The checks cascade: password+key, then key, then token, then password.
func DeriveAuthType(hasPassword, hasKeyPath, hasToken bool) AuthType {
	switch {
	case hasPassword && hasKeyPath:
		return AuthTypeBoth
	case hasKeyPath:
		return AuthTypeKey
	case hasToken:
		return AuthTypeToken
	default:
		return AuthTypePassword
	}
}

// SecretField names an encrypted column of a credential record.
type SecretField string

const (
	SecretFieldPassword SecretField = "password"
	SecretFieldAPIToken SecretField = "api_token"
)

// SecretState describes what a view knows about a secret field.
type SecretState string

const (
	SecretAbsent        SecretState = "absent"
	SecretDecrypted     SecretState = "decrypted"
	SecretUndecryptable SecretState = "undecryptable"
)
