// Package cli locates the flightctl command-line binary the console bridge
// drives, downloading a platform-matched build from the service's artifact
// host when none is installed.
package cli
