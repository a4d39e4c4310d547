// Package awstags converts between the domain's plain map[string]string
// tag representation and the EC2 SDK's typed tag slices, and builds the
// standard set of required tags every created resource carries.
package awstags

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/samber/lo"
)

// RequiredTags returns the tags every handler must attach to a created
// resource, in addition to whatever the template declares.
func RequiredTags(requestID, templateID, providerAPI string) map[string]string {
	return map[string]string{
		"RequestId":   requestID,
		"TemplateId":  templateID,
		"CreatedBy":   "hostfactory",
		"ProviderApi": providerAPI,
	}
}

// Merge layers extra over base, extra winning on key collisions.
func Merge(base, extra map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// ToEC2Tags converts a plain tag map to EC2 SDK tags.
func ToEC2Tags(tags map[string]string) []ec2types.Tag {
	var ec2Tags []ec2types.Tag
	for k, v := range tags {
		ec2Tags = append(ec2Tags, ec2types.Tag{Key: aws.String(k), Value: aws.String(v)})
	}
	return ec2Tags
}

// FromEC2Tags converts EC2 SDK tags back to a plain map.
func FromEC2Tags(ec2Tags []ec2types.Tag) map[string]string {
	tags := map[string]string{}
	for _, t := range ec2Tags {
		tags[lo.FromPtr(t.Key)] = lo.FromPtr(t.Value)
	}
	return tags
}

// TagSpecifications builds TagSpecification entries for each given
// resource type, all carrying the same tag set — the common pattern
// every AWS handler uses to tag both the top-level resource (fleet,
// ASG, launch template) and the instances it produces.
func TagSpecifications(tags map[string]string, resourceTypes ...ec2types.ResourceType) []ec2types.TagSpecification {
	ec2Tags := ToEC2Tags(tags)
	specs := make([]ec2types.TagSpecification, 0, len(resourceTypes))
	for _, rt := range resourceTypes {
		specs = append(specs, ec2types.TagSpecification{ResourceType: rt, Tags: ec2Tags})
	}
	return specs
}
