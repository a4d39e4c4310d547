// Package launchtemplate owns the lifecycle of the EC2 launch
// templates every AWS handler launches instances from: building
// LaunchTemplateData from a Template, creating or reusing a named
// template, and cutting new versions as the template's contents
// change.
package launchtemplate

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/samber/lo"

	"github.com/hostfactory/aws-provider/pkg/domain/request"
	"github.com/hostfactory/aws-provider/pkg/domain/template"
	"github.com/hostfactory/aws-provider/pkg/provider/aws/internal/awserr"
	"github.com/hostfactory/aws-provider/pkg/provider/aws/internal/awstags"
)

// NamingStrategy controls how a generated launch template is named.
type NamingStrategy string

const (
	NamingRequestBased  NamingStrategy = "request_based"
	NamingTemplateBased NamingStrategy = "template_based"
)

// VersionStrategy controls the description attached to a new launch
// template version (timestamp sets one, incremental leaves it empty);
// the version number itself is always the one AWS assigns.
type VersionStrategy string

const (
	VersionIncremental VersionStrategy = "incremental"
	VersionTimestamp   VersionStrategy = "timestamp"
)

// SDKLaunchTemplatesOps is the subset of the EC2 client the manager
// needs, narrowed to just the calls it makes so tests can substitute a
// fake.
type SDKLaunchTemplatesOps interface {
	ec2.DescribeLaunchTemplatesAPIClient
	ec2.DescribeLaunchTemplateVersionsAPIClient
	CreateLaunchTemplate(context.Context, *ec2.CreateLaunchTemplateInput, ...func(*ec2.Options)) (*ec2.CreateLaunchTemplateOutput, error)
	CreateLaunchTemplateVersion(context.Context, *ec2.CreateLaunchTemplateVersionInput, ...func(*ec2.Options)) (*ec2.CreateLaunchTemplateVersionOutput, error)
}

// AMIResolver resolves a template's image_id field to a concrete AMI id.
type AMIResolver interface {
	Resolve(ctx context.Context, imageID, architecture string) (string, error)
}

// Options configures the manager's naming, reuse, and versioning
// policy. MaxVersionsPerTemplate and CleanupOldVersions are carried in
// the options but the manager does not read them: old versions are
// never pruned.
type Options struct {
	CreatePerRequest       bool
	NamingStrategy         NamingStrategy
	ReuseExisting          bool
	VersionStrategy        VersionStrategy
	MaxVersionsPerTemplate int
	CleanupOldVersions     bool
}

func DefaultOptions() Options {
	return Options{
		CreatePerRequest:       false,
		NamingStrategy:         NamingTemplateBased,
		ReuseExisting:          true,
		VersionStrategy:        VersionIncremental,
		MaxVersionsPerTemplate: 10,
		CleanupOldVersions:     false,
	}
}

// Result is what create_or_update_launch_template returns to a handler.
type Result struct {
	TemplateID         string
	TemplateName       string
	Version            string
	CreatedNewTemplate bool
}

// Manager owns launch template creation, reuse, and versioning.
type Manager struct {
	api  SDKLaunchTemplatesOps
	amis AMIResolver
	opts Options
}

func NewManager(api SDKLaunchTemplatesOps, amis AMIResolver, opts Options) *Manager {
	return &Manager{api: api, amis: amis, opts: opts}
}

// CreateOrUpdate implements create_or_update_launch_template: it
// names the template per NamingStrategy, looks it up when
// ReuseExisting is set, creates it if absent, and otherwise cuts a
// new version carrying the template's current LaunchTemplateData.
func (m *Manager) CreateOrUpdate(ctx context.Context, t *template.Template, r *request.Request) (Result, error) {
	name := m.nameFor(t, r)

	data, err := m.buildLaunchTemplateData(ctx, t, r)
	if err != nil {
		return Result{}, err
	}

	if m.opts.ReuseExisting && !m.opts.CreatePerRequest {
		existing, found, err := m.lookupByName(ctx, name)
		if err != nil {
			return Result{}, err
		}
		if found {
			version, err := m.newVersion(ctx, existing, data)
			if err != nil {
				return Result{}, err
			}
			return Result{TemplateID: existing, TemplateName: name, Version: version, CreatedNewTemplate: false}, nil
		}
	}

	out, err := m.api.CreateLaunchTemplate(ctx, &ec2.CreateLaunchTemplateInput{
		LaunchTemplateName: aws.String(name),
		LaunchTemplateData: data,
		TagSpecifications: []ec2types.TagSpecification{
			{
				ResourceType: ec2types.ResourceTypeLaunchTemplate,
				Tags:         awstags.ToEC2Tags(awstags.RequiredTags(r.RequestID, t.TemplateID, string(t.ProviderAPI))),
			},
		},
	})
	if err != nil {
		if awserr.IsAlreadyExists(err) {
			existing, found, lookupErr := m.lookupByName(ctx, name)
			if lookupErr != nil {
				return Result{}, lookupErr
			}
			if found {
				version, versionErr := m.newVersion(ctx, existing, data)
				if versionErr != nil {
					return Result{}, versionErr
				}
				return Result{TemplateID: existing, TemplateName: name, Version: version, CreatedNewTemplate: false}, nil
			}
		}
		return Result{}, fmt.Errorf("launchtemplate: create %q: %w", name, err)
	}
	return Result{
		TemplateID:         lo.FromPtr(out.LaunchTemplate.LaunchTemplateId),
		TemplateName:       name,
		Version:            "$Latest",
		CreatedNewTemplate: true,
	}, nil
}

func (m *Manager) nameFor(t *template.Template, r *request.Request) string {
	switch m.opts.NamingStrategy {
	case NamingRequestBased:
		return fmt.Sprintf("hostfactory-%s-%s", t.TemplateID, r.RequestID)
	default:
		if m.opts.CreatePerRequest {
			return fmt.Sprintf("hostfactory-%s-%s", t.TemplateID, r.RequestID)
		}
		return fmt.Sprintf("hostfactory-%s", t.TemplateID)
	}
}

func (m *Manager) lookupByName(ctx context.Context, name string) (string, bool, error) {
	pager := ec2.NewDescribeLaunchTemplatesPaginator(m.api, &ec2.DescribeLaunchTemplatesInput{
		LaunchTemplateNames: []string{name},
	})
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return "", false, nil
		}
		if len(page.LaunchTemplates) > 0 {
			return lo.FromPtr(page.LaunchTemplates[0].LaunchTemplateId), true, nil
		}
	}
	return "", false, nil
}

func (m *Manager) newVersion(ctx context.Context, launchTemplateID string, data *ec2types.RequestLaunchTemplateData) (string, error) {
	in := &ec2.CreateLaunchTemplateVersionInput{
		LaunchTemplateId:   aws.String(launchTemplateID),
		LaunchTemplateData: data,
	}
	if m.opts.VersionStrategy == VersionTimestamp {
		in.VersionDescription = aws.String(fmt.Sprintf("hostfactory-%d", time.Now().Unix()))
	}
	out, err := m.api.CreateLaunchTemplateVersion(ctx, in)
	if err != nil {
		return "", fmt.Errorf("launchtemplate: new version for %q: %w", launchTemplateID, err)
	}
	version := lo.FromPtr(out.LaunchTemplateVersion.VersionNumber)
	return strconv.FormatInt(version, 10), nil
}

func (m *Manager) buildLaunchTemplateData(ctx context.Context, t *template.Template, r *request.Request) (*ec2types.RequestLaunchTemplateData, error) {
	architecture := ""
	imageID, err := m.amis.Resolve(ctx, t.ImageID, architecture)
	if err != nil {
		return nil, err
	}

	data := &ec2types.RequestLaunchTemplateData{
		ImageId:          aws.String(imageID),
		InstanceType:     ec2types.InstanceType(t.InstanceType),
		SecurityGroupIds: t.SecurityGroupIDs,
		TagSpecifications: []ec2types.TagSpecification{
			{
				ResourceType: ec2types.ResourceTypeInstance,
				Tags:         awstags.ToEC2Tags(awstags.Merge(t.Tags, awstags.RequiredTags(r.RequestID, t.TemplateID, string(t.ProviderAPI)))),
			},
		},
	}

	if t.AWS == nil {
		return data, nil
	}
	ext := t.AWS
	if ext.KeyName != "" {
		data.KeyName = aws.String(ext.KeyName)
	}
	if ext.UserData != "" {
		data.UserData = aws.String(base64.StdEncoding.EncodeToString([]byte(ext.UserData)))
	}
	if ext.InstanceProfile != "" {
		data.IamInstanceProfile = &ec2types.LaunchTemplateIamInstanceProfileSpecificationRequest{
			Name: aws.String(ext.InstanceProfile),
		}
	}
	if ext.RootDeviceVolumeSize > 0 {
		ebs := &ec2types.LaunchTemplateEbsBlockDeviceRequest{
			VolumeSize: aws.Int32(int32(ext.RootDeviceVolumeSize)),
		}
		if ext.VolumeType != "" {
			ebs.VolumeType = ec2types.VolumeType(ext.VolumeType)
		}
		if ext.IOPS > 0 {
			ebs.Iops = aws.Int32(int32(ext.IOPS))
		}
		data.BlockDeviceMappings = []ec2types.LaunchTemplateBlockDeviceMappingRequest{
			{DeviceName: aws.String("/dev/xvda"), Ebs: ebs},
		}
	}
	return data, nil
}
