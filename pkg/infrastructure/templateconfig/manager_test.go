package templateconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTemplateFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadAllReadsAnArrayFile(t *testing.T) {
	dir := t.TempDir()
	writeTemplateFile(t, dir, "templates.json", `[
		{"template_id": "tmpl-1", "image_id": "ami-1", "subnet_ids": ["subnet-a"], "max_instances": 5, "provider_api": "EC2Fleet", "price_type": "spot"}
	]`)
	m := NewManager(dir, "aws-east", "aws", nil, DefaultsLayers{})
	got, err := m.LoadAll()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].TemplateID != "tmpl-1" {
		t.Fatalf("got %+v", got)
	}
	if got[0].FileType != FileTypeMain {
		t.Fatalf("got file type %q, want %q", got[0].FileType, FileTypeMain)
	}
}

func TestLoadAllReadsATemplateIDKeyedObjectFile(t *testing.T) {
	dir := t.TempDir()
	writeTemplateFile(t, dir, "templates.json", `{
		"tmpl-1": {"image_id": "ami-1", "subnet_ids": ["subnet-a"], "max_instances": 5, "provider_api": "EC2Fleet", "price_type": "spot"}
	}`)
	m := NewManager(dir, "aws-east", "aws", nil, DefaultsLayers{})
	got, err := m.LoadAll()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].TemplateID != "tmpl-1" {
		t.Fatalf("got %+v", got)
	}
}

func TestLoadAllHigherPriorityFileWinsFieldByField(t *testing.T) {
	dir := t.TempDir()
	writeTemplateFile(t, dir, "aws-east_templates.json", `{
		"tmpl-1": {"image_id": "ami-override", "subnet_ids": ["subnet-override"], "max_instances": 5, "provider_api": "EC2Fleet", "price_type": "spot"}
	}`)
	writeTemplateFile(t, dir, "templates.json", `{
		"tmpl-1": {"image_id": "ami-base", "subnet_ids": ["subnet-base"], "max_instances": 1, "security_group_ids": ["sg-base"], "provider_api": "EC2Fleet", "price_type": "ondemand"}
	}`)
	m := NewManager(dir, "aws-east", "aws", nil, DefaultsLayers{})
	got, err := m.LoadAll()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d templates, want 1 merged by template_id", len(got))
	}
	tmpl := got[0]
	if tmpl.ImageID != "ami-override" {
		t.Fatalf("expected provider-instance file to win image_id, got %q", tmpl.ImageID)
	}
	if tmpl.FileType != FileTypeProviderInstance {
		t.Fatalf("got file type %q, want %q", tmpl.FileType, FileTypeProviderInstance)
	}
	if len(tmpl.SecurityGroupIDs) != 1 || tmpl.SecurityGroupIDs[0] != "sg-base" {
		t.Fatalf("expected a field only the base file sets to survive the merge, got %+v", tmpl.SecurityGroupIDs)
	}
}

func TestLoadAllToleratesMissingFiles(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir, "aws-east", "aws", nil, DefaultsLayers{})
	got, err := m.LoadAll()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("got %+v, want no templates when no files exist", got)
	}
}

func TestLoadAllPropagatesValidationErrors(t *testing.T) {
	dir := t.TempDir()
	writeTemplateFile(t, dir, "templates.json", `{
		"tmpl-1": {"provider_api": "EC2Fleet", "price_type": "spot"}
	}`)
	m := NewManager(dir, "aws-east", "aws", nil, DefaultsLayers{})
	if _, err := m.LoadAll(); err == nil {
		t.Fatal("expected a missing image_id to fail validation")
	}
}

func TestGetByIDFindsAKnownTemplate(t *testing.T) {
	dir := t.TempDir()
	writeTemplateFile(t, dir, "templates.json", `[
		{"template_id": "tmpl-1", "image_id": "ami-1", "subnet_ids": ["subnet-a"], "max_instances": 5, "provider_api": "EC2Fleet", "price_type": "spot"},
		{"template_id": "tmpl-2", "image_id": "ami-2", "subnet_ids": ["subnet-b"], "max_instances": 3, "provider_api": "ASG", "price_type": "ondemand"}
	]`)
	m := NewManager(dir, "aws-east", "aws", nil, DefaultsLayers{})
	got, ok, err := m.GetByID("tmpl-2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok || got.TemplateID != "tmpl-2" {
		t.Fatalf("got %+v, ok=%v", got, ok)
	}
}

func TestGetByIDReportsNotFound(t *testing.T) {
	dir := t.TempDir()
	writeTemplateFile(t, dir, "templates.json", `[]`)
	m := NewManager(dir, "aws-east", "aws", nil, DefaultsLayers{})
	_, ok, err := m.GetByID("missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected not found for an undefined template id")
	}
}

func TestInvalidateForcesReReadOfDiskState(t *testing.T) {
	dir := t.TempDir()
	writeTemplateFile(t, dir, "templates.json", `[
		{"template_id": "tmpl-1", "image_id": "ami-1", "subnet_ids": ["subnet-a"], "max_instances": 5, "provider_api": "EC2Fleet", "price_type": "spot"}
	]`)
	m := NewManager(dir, "aws-east", "aws", NewTTLCache(time.Minute), DefaultsLayers{})
	first, err := m.LoadAll()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first[0].ImageID != "ami-1" {
		t.Fatalf("got %q", first[0].ImageID)
	}

	writeTemplateFile(t, dir, "templates.json", `[
		{"template_id": "tmpl-1", "image_id": "ami-2", "subnet_ids": ["subnet-a"], "max_instances": 5, "provider_api": "EC2Fleet", "price_type": "spot"}
	]`)
	m.Invalidate()

	second, err := m.LoadAll()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second[0].ImageID != "ami-2" {
		t.Fatalf("got %q, want the re-read value after Invalidate", second[0].ImageID)
	}
}
