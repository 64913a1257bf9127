// Package tutorauth is the authentication and session service of the tutor
// app. It registers local accounts, verifies email addresses, logs users in
// with a password or with Google, and keeps them logged in with a short-lived
// access token and a rotating refresh token.
//
// # Architecture
//
// Credential: the single record per user. It carries the profile, an optional
// bcrypt password hash, an optional Google subject, and the one-time tokens
// for email verification and password reset.
//
// CredentialStore: persistence for credentials. stores/gorm backs it with
// PostgreSQL; stores/fs keeps JSON files for development and tests. Both
// enforce email and Google subject uniqueness.
//
// AuthService: the session lifecycle on top of a store, a TokenIssuer and a
// Mailer. It holds no per-user state, so any number of requests may run
// concurrently.
//
// API: the HTTP surface under /api/auth. The access token travels in the
// response body and the Authorization header; the refresh token only ever
// lives in an HttpOnly cookie.
//
// # Basic Usage
//
//	issuer, err := tutorauth.NewTokenIssuer(tutorauth.IssuerConfig{
//	    AccessSecret:  os.Getenv("JWT_SECRET"),
//	    RefreshSecret: os.Getenv("JWT_REFRESH_SECRET"),
//	})
//	store := fs.NewFSCredentialStore("/var/lib/tutorauth")
//	mailer := tutorauth.NewMailerWithSender("https://app.example.com", &tutorauth.ConsoleEmailSender{})
//
//	auth := tutorauth.NewAuthService(store, issuer, mailer)
//	api := tutorauth.NewAPI(auth)
//	api.ClientURL = "https://app.example.com"
//	http.ListenAndServe(":5000", api.Handler())
//
// Hosts with their own router can call api.Mount on a subrouter instead.
//
// # Development mode
//
// SkipVerification and the unverified-login bypass exist only in binaries
// built with -tags tutorauth_dev, and even then only when DevMode is set.
package tutorauth
