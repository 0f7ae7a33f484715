// Package challenge issues randomized gesture + expression challenges with a
// fixed expiry window. Clock and randomness are injectable so callers can
// reproduce a challenge exactly in tests.
package challenge
