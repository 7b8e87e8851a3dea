// Package gameserver holds the race and minigame services, their per-key
// locking, the gRPC bridge, and the periodic store housekeeping.
//
// Services take the authenticated auth.Caller explicitly and return
// errs.Error values that the HTTP and gRPC layers translate to status codes.
package gameserver
