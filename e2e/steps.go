package e2e

import (
	"github.com/cucumber/godog"

	"catalog/e2e/steps/products"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	ctx.Step(`^I am authenticated as "([^"]*)"$`, tc.authenticateAs)
	ctx.Step(`^I am not authenticated$`, tc.clearAccessToken)
	ctx.Step(`^the response status should be (\d+)$`, tc.responseStatusShouldBe)
	ctx.Step(`^the response field "([^"]*)" should be "([^"]*)"$`, tc.responseFieldShouldBe)
	ctx.Step(`^the response error should be "([^"]*)"$`, tc.responseErrorShouldBe)

	products.RegisterSteps(ctx, tc)
}
