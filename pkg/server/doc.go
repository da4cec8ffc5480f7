// Package server binds the UDP listener that answers energy monitor
// discovery polls on behalf of a set of virtual outlets.
//
// The server owns only the socket. Which outlets exist, and what they
// currently draw, is asked of the outlet.Provider given to New for every
// poll, so the host application is free to change them at any time.
package server
