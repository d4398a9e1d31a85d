package e2e

import (
	"github.com/cucumber/godog"

	"fishtank/e2e/steps/common"
	"fishtank/e2e/steps/forms"
)

// RegisterSteps registers all step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	common.RegisterSteps(ctx, tc)
	forms.RegisterSteps(ctx, tc)
}
