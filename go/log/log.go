// Package log is the logging facade for the module. It delegates to glog so
// importers keep a single set of logging flags, and exists so the few places
// that need to log do not bind to a concrete logger.
package log

import "github.com/golang/glog"

var (
	// V quickly checks if the logging verbosity meets a threshold.
	V = glog.V
	// Flush ensures any pending I/O is written.
	Flush = glog.Flush
	// Info formats arguments like fmt.Print.
	Info = glog.Info
	// Infof formats arguments like fmt.Printf.
	Infof = glog.Infof
	// Warning formats arguments like fmt.Print.
	Warning = glog.Warning
	// Warningf formats arguments like fmt.Printf.
	Warningf = glog.Warningf
	// Error formats arguments like fmt.Print.
	Error = glog.Error
	// Errorf formats arguments like fmt.Printf.
	Errorf = glog.Errorf
)
