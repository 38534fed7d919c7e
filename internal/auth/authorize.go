package auth

// Decision is an allow decision scoped to one requested resource, with
// the identity context attached.
type Decision struct {
	Allowed  bool
	Resource string
	UserID   string
	Email    string
	Role     string
}

// Authorize derives an allow decision for the requested resource from
// verified claims. Role falls back to "user" when the token carries no
// role attribute.
func Authorize(claims *TokenClaims, resource string) Decision {
	if claims == nil || claims.Subject == "" {
		return Decision{Allowed: false, Resource: resource}
	}

	email, _ := claims.Custom["email"].(string)
	role, _ := claims.Custom["role"].(string)
	if role == "" {
		role = "user"
	}

	return Decision{
		Allowed:  true,
		Resource: resource,
		UserID:   claims.Subject,
		Email:    email,
		Role:     role,
	}
}
