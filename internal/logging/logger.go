// Package logging builds the process-wide zap logger.
package logging

import (
	"fmt"

	"go.uber.org/zap"
)

// New returns a production JSON logger, or a human-readable development
// logger when development is true.
func New(development bool) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if development {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}
