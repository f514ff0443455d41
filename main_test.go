package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunRejectsUnknownCommands(t *testing.T) {
	ctx := context.Background()
	assert.Error(t, run(ctx, nil))
	assert.Error(t, run(ctx, []string{"serve"}))
}

func TestEvalRequiresModel(t *testing.T) {
	err := runEval([]string{"-episodes", "1"})
	assert.ErrorContains(t, err, "-model")
}
