// Package logging configures the logrus level for the CLI front ends.
package logging

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

// SetLevelFromName sets the logging level based on a string level name,
// falling back to warn for unknown names.
func SetLevelFromName(levelName string) {
	level, err := log.ParseLevel(levelName)
	if err != nil {
		log.SetLevel(log.WarnLevel)
		log.Warnf("Unknown loglevel '%s' - using loglevel=warn", levelName)
		return
	}
	log.SetLevel(level)
	log.Debugf("Loglevel set to %s", levelName)
}

// LoggedErrorf produces an error that is returned after having logged it at
// error level.
func LoggedErrorf(format string, values ...interface{}) error {
	err := fmt.Errorf(format, values...)
	log.Error(err)
	return err
}
