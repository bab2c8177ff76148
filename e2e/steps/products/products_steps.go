package products

import (
	"context"
	"fmt"
	"time"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body any) error
	PATCH(path string, body any) error
	GET(path string) error
	DELETE(path string) error
	GetResponseField(field string) (any, error)
	GetResponseList() ([]map[string]any, error)
	SaveValue(key, value string)
	GetValue(key string) string
}

// RegisterSteps registers product step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &productSteps{tc: tc}

	ctx.Step(`^I create a product named "([^"]*)" priced (\d+(?:\.\d+)?) with stock (\d+)$`, steps.createProduct)
	ctx.Step(`^I create a product without a name$`, steps.createProductWithoutName)
	ctx.Step(`^I save the product id$`, steps.saveProductID)
	ctx.Step(`^I get the saved product$`, steps.getSavedProduct)
	ctx.Step(`^I get product "([^"]*)"$`, steps.getProduct)
	ctx.Step(`^I list products$`, steps.listProducts)
	ctx.Step(`^I update the saved product stock to (\d+)$`, steps.updateSavedProductStock)
	ctx.Step(`^I delete the saved product$`, steps.deleteSavedProduct)
	ctx.Step(`^the product list should contain "([^"]*)"$`, steps.listShouldContain)
	ctx.Step(`^the product list should not contain the saved product$`, steps.listShouldNotContainSaved)
}

type productSteps struct {
	tc TestContext
}

func (s *productSteps) createProduct(ctx context.Context, name string, price float64, stock int) error {
	// unique names keep scenarios independent when run against a shared database
	return s.tc.POST("/products", map[string]any{
		"name":  fmt.Sprintf("%s %d", name, time.Now().UnixNano()),
		"price": price,
		"stock": stock,
	})
}

func (s *productSteps) createProductWithoutName(ctx context.Context) error {
	return s.tc.POST("/products", map[string]any{"price": 1, "stock": 1})
}

func (s *productSteps) saveProductID(ctx context.Context) error {
	id, err := s.tc.GetResponseField("id")
	if err != nil {
		return err
	}
	s.tc.SaveValue("product_id", fmt.Sprint(id))
	name, err := s.tc.GetResponseField("name")
	if err != nil {
		return err
	}
	s.tc.SaveValue("product_name", fmt.Sprint(name))
	return nil
}

func (s *productSteps) getSavedProduct(ctx context.Context) error {
	return s.tc.GET("/products/" + s.tc.GetValue("product_id"))
}

func (s *productSteps) getProduct(ctx context.Context, id string) error {
	return s.tc.GET("/products/" + id)
}

func (s *productSteps) listProducts(ctx context.Context) error {
	return s.tc.GET("/products")
}

func (s *productSteps) updateSavedProductStock(ctx context.Context, stock int) error {
	return s.tc.PATCH("/products/"+s.tc.GetValue("product_id"), map[string]any{"stock": stock})
}

func (s *productSteps) deleteSavedProduct(ctx context.Context) error {
	return s.tc.DELETE("/products/" + s.tc.GetValue("product_id"))
}

func (s *productSteps) listShouldContain(ctx context.Context, prefix string) error {
	list, err := s.tc.GetResponseList()
	if err != nil {
		return err
	}
	want := s.tc.GetValue("product_name")
	for _, p := range list {
		if p["name"] == want {
			return nil
		}
	}
	return fmt.Errorf("no product %q (created as %q) in list of %d", want, prefix, len(list))
}

func (s *productSteps) listShouldNotContainSaved(ctx context.Context) error {
	list, err := s.tc.GetResponseList()
	if err != nil {
		return err
	}
	id := s.tc.GetValue("product_id")
	for _, p := range list {
		if p["id"] == id {
			return fmt.Errorf("deleted product %s still listed", id)
		}
	}
	return nil
}
