// Package adapter wraps everything outside the process that the bootstrap
// drives or talks to.
//
// # Commands
//
// Runner executes external commands. ExecRunner duplicates command output
// into the run log. PackageManager is the opaque "install package X"
// capability with one implementation per supported manager (apt, dnf,
// pacman), chosen once by SelectPackageManager. Systemctl wraps the service
// manager calls the pipeline and reset path need.
//
// # HTTP
//
// KismetClient speaks to the capture daemon's status, index, and session
// endpoints without following redirects. WigleClient performs the single
// profile lookup used to validate WiGLE API credentials.
//
// # Port checks
//
// NmapPortChecker scans the daemon's port with nmap; DialPortChecker is the
// fallback when the nmap binary is not installed.
package adapter
