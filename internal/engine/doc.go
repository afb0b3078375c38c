// Package engine drives the store lifecycle. The Engine runs one detached
// provisioning or deletion pipeline per store, persisting every status
// transition and appending lifecycle events as it goes; the Reaper is an
// independent periodic task that force-fails stores whose provisioning
// deadline has passed and reclaims their cluster resources.
package engine
