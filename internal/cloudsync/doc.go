// Package cloudsync reconciles locally stored project headers with the
// entries of a cloud provider.
package cloudsync
