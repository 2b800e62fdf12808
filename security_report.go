package goRenew

import "time"

type SecurityReport struct {
	ProductionMode        bool
	SigningAlgorithm      string
	KeyID                 string
	VerifyKeyCount        int
	ValidationMode        ValidationMode
	AntiForgeryMode       AntiForgeryMode
	AccessTTL             time.Duration
	RefreshTTL            time.Duration
	Leeway                time.Duration
	Argon2                PasswordConfigReport
	LoginThrottleActive   bool
	IPThrottleActive      bool
	RefreshThrottleActive bool
	FederationLinking     bool
	AuditEnabled          bool
	LintWarnings          []string
}

type PasswordConfigReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	lint := e.config.Lint()
	return SecurityReport{
		ProductionMode:   e.config.Security.ProductionMode,
		SigningAlgorithm: e.config.JWT.SigningMethod,
		KeyID:            e.config.JWT.KeyID,
		VerifyKeyCount:   len(e.JWKS().Keys),
		ValidationMode:   e.config.ValidationMode,
		AntiForgeryMode:  e.config.AntiForgery.Mode,
		AccessTTL:        e.config.JWT.AccessTTL,
		RefreshTTL:       e.config.JWT.RefreshTTL,
		Leeway:           e.config.JWT.Leeway,
		Argon2: PasswordConfigReport{
			Memory:      e.config.Password.Memory,
			Time:        e.config.Password.Time,
			Parallelism: e.config.Password.Parallelism,
			SaltLength:  e.config.Password.SaltLength,
			KeyLength:   e.config.Password.KeyLength,
		},
		LoginThrottleActive:   e.config.Security.MaxLoginAttempts > 0 && e.config.Security.LoginCooldownDuration > 0,
		IPThrottleActive:      e.config.Security.EnableIPThrottle,
		RefreshThrottleActive: e.config.Security.EnableRefreshThrottle,
		FederationLinking:     e.config.Security.LinkVerifiedEmail,
		AuditEnabled:          e.audit != nil,
		LintWarnings:          lint.Codes(),
	}
}
