//go:build !tutorauth_dev

package tutorauth

const devBuild = false
