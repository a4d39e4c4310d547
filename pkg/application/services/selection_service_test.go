package services

import (
	"testing"

	"github.com/hostfactory/aws-provider/pkg/domain/template"
	"github.com/hostfactory/aws-provider/pkg/infrastructure/config"
)

func instances() []config.ProviderConfig {
	return []config.ProviderConfig{
		{Name: "aws-us-east-1", Type: "aws-ec2", Enabled: true, APIs: []string{"EC2Fleet", "SpotFleet"}, Weight: 3},
		{Name: "aws-us-west-2", Type: "aws-ec2", Enabled: true, APIs: []string{"EC2Fleet"}, Weight: 1},
		{Name: "aws-disabled", Type: "aws-ec2", Enabled: false, APIs: []string{"EC2Fleet"}},
		{Name: "aws-asg-only", Type: "aws-asg", Enabled: true, APIs: []string{"ASG"}},
	}
}

func TestSelectProviderByExplicitName(t *testing.T) {
	s := NewProviderSelectionService(instances(), config.Config{}, nil)
	sel, err := s.SelectProvider(&template.Template{ProviderName: "aws-us-west-2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sel.ProviderInstance != "aws-us-west-2" || sel.ProviderType != "aws-ec2" {
		t.Fatalf("unexpected selection: %+v", sel)
	}
}

func TestSelectProviderByNameFailsWhenDisabled(t *testing.T) {
	s := NewProviderSelectionService(instances(), config.Config{}, nil)
	_, err := s.SelectProvider(&template.Template{ProviderName: "aws-disabled"})
	if err == nil {
		t.Fatal("expected an error selecting a disabled provider instance by name")
	}
}

func TestSelectProviderByNameFailsWhenUnknown(t *testing.T) {
	s := NewProviderSelectionService(instances(), config.Config{}, nil)
	_, err := s.SelectProvider(&template.Template{ProviderName: "does-not-exist"})
	if err == nil {
		t.Fatal("expected an error selecting an unknown provider instance by name")
	}
}

func TestSelectProviderByTypeRoundRobin(t *testing.T) {
	s := NewProviderSelectionService(instances(), config.Config{SelectionPolicy: "ROUND_ROBIN"}, nil)
	first, err := s.SelectProvider(&template.Template{ProviderType: "aws-ec2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := s.SelectProvider(&template.Template{ProviderType: "aws-ec2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.ProviderInstance == second.ProviderInstance {
		t.Fatalf("expected round robin to alternate instances, got %s twice", first.ProviderInstance)
	}
}

func TestSelectProviderByTypeExcludesDisabled(t *testing.T) {
	s := NewProviderSelectionService(instances(), config.Config{}, nil)
	sel, err := s.SelectProvider(&template.Template{ProviderType: "aws-ec2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sel.ProviderInstance == "aws-disabled" {
		t.Fatal("expected the disabled instance to never be selected")
	}
}

func TestSelectProviderByAPI(t *testing.T) {
	s := NewProviderSelectionService(instances(), config.Config{}, nil)
	sel, err := s.SelectProvider(&template.Template{ProviderAPI: template.ProviderAPIASG})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sel.ProviderInstance != "aws-asg-only" {
		t.Fatalf("expected the only ASG-capable instance to be selected, got %+v", sel)
	}
}

func TestSelectProviderFallsBackToDefaultInstance(t *testing.T) {
	s := NewProviderSelectionService(instances(), config.Config{DefaultProviderInstance: "aws-us-west-2"}, nil)
	sel, err := s.SelectProvider(&template.Template{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sel.ProviderInstance != "aws-us-west-2" {
		t.Fatalf("expected the configured default instance, got %+v", sel)
	}
}

func TestSelectProviderFallsBackToFirstEnabled(t *testing.T) {
	s := NewProviderSelectionService(instances(), config.Config{}, nil)
	sel, err := s.SelectProvider(&template.Template{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sel.ProviderInstance != "aws-us-east-1" {
		t.Fatalf("expected the first enabled instance, got %+v", sel)
	}
}

func TestSelectProviderFailsWhenNoneEnabled(t *testing.T) {
	s := NewProviderSelectionService([]config.ProviderConfig{{Name: "x", Type: "aws-ec2", Enabled: false}}, config.Config{}, nil)
	_, err := s.SelectProvider(&template.Template{})
	if err == nil {
		t.Fatal("expected an error when no instance is enabled")
	}
}

func TestSelectProviderByTypeWeighted(t *testing.T) {
	s := NewProviderSelectionService(instances(), config.Config{SelectionPolicy: "WEIGHTED_ROUND_ROBIN"}, nil)
	sel, err := s.SelectProvider(&template.Template{ProviderType: "aws-ec2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sel.ProviderInstance != "aws-us-east-1" {
		t.Fatalf("expected the higher-weight instance, got %+v", sel)
	}
}
