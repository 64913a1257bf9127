package tutorauth

// DevMode is the runtime switch for development-only shortcuts: logging in
// without a verified email and the skip-verification operation. It only has
// effect in binaries built with the tutorauth_dev build tag; in every other
// build Active always reports false.
type DevMode bool

// Active reports whether the development bypass is in force
func (d DevMode) Active() bool {
	return devBuild && bool(d)
}

// DevBuild reports whether this binary was compiled with the tutorauth_dev tag
func DevBuild() bool {
	return devBuild
}
