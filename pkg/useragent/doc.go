// Package useragent classifies HTTP User-Agent strings into coarse device
// categories (mobile, tablet, desktop, bot) and extracts browser and
// operating-system names.
//
// The classification is a signal for device fingerprinting and session
// context, not an exhaustive UA database: unknown agents degrade to the
// unknown category rather than failing.
package useragent
