package catalog

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// SeedFile is the YAML document that seeds products and coupons into the
// local store.
type SeedFile struct {
	Products []ProductSeed `yaml:"products"`
	Coupons  []CouponSeed  `yaml:"coupons"`
}

type ProductSeed struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	Image string `yaml:"image"`
	Price int64  `yaml:"price"`
	MRP   int64  `yaml:"mrp"`
	Stock int    `yaml:"stock"`
}

type CouponSeed struct {
	Code          string    `yaml:"code"`
	Type          string    `yaml:"type"`
	Value         int64     `yaml:"value"`
	MinOrderValue int64     `yaml:"min_order_value"`
	MaxDiscount   int64     `yaml:"max_discount"`
	ValidFrom     time.Time `yaml:"valid_from"`
	ValidTo       time.Time `yaml:"valid_to"`
	UsageLimit    int       `yaml:"usage_limit"`
	Active        *bool     `yaml:"active"`
}

type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

func (p *Parser) Parse(content []byte) (*SeedFile, error) {
	var seed SeedFile
	if err := yaml.Unmarshal(content, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return &seed, nil
}

func (p *Parser) ParseFile(path string) (*SeedFile, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return p.Parse(content)
}
