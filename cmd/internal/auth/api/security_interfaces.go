package api

import "context"

// CaptchaVerifier checks user-provided captcha tokens. The default is a
// no-op; real providers are wired via WithCaptchaVerifier.
type CaptchaVerifier interface {
	VerifyCaptcha(ctx context.Context, token, ip string) (bool, error)
}

// NoopCaptchaVerifier accepts every token.
type NoopCaptchaVerifier struct{}

func (NoopCaptchaVerifier) VerifyCaptcha(_ context.Context, _, _ string) (bool, error) {
	return true, nil
}
