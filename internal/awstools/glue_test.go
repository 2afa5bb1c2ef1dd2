package awstools

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/glue"
	gluetypes "github.com/aws/aws-sdk-go-v2/service/glue/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetTableSchema(t *testing.T) {
	f := &fakeGlue{out: &glue.GetTableOutput{Table: &gluetypes.Table{
		Name: aws.String("approval_audit"),
		StorageDescriptor: &gluetypes.StorageDescriptor{
			Location: aws.String("s3://audit/approvals/"),
			Columns: []gluetypes.Column{
				{Name: aws.String("tool_name"), Type: aws.String("STRING")},
				{Name: aws.String("approved"), Type: aws.String(" boolean ")},
			},
		},
		PartitionKeys: []gluetypes.Column{{Name: aws.String("dt"), Type: aws.String("string")}},
	}}}

	s, err := GetTableSchema(context.Background(), f, "ops", "approval_audit")
	require.NoError(t, err)
	assert.Equal(t, "ops", aws.ToString(f.in.DatabaseName))
	assert.Equal(t, []Column{{Name: "approved", Type: "boolean"}, {Name: "tool_name", Type: "string"}}, s.Columns)
	assert.Equal(t, []Column{{Name: "dt", Type: "string"}}, s.Partitions)

	want := "DATABASE ops\n" +
		"TABLE approval_audit (\n" +
		"  approved boolean,\n" +
		"  tool_name string\n" +
		")\n" +
		"PARTITIONED BY (dt string)\n" +
		"LOCATION s3://audit/approvals/\n"
	assert.Equal(t, want, s.CompactText())
}

func TestGetTableSchema_Errors(t *testing.T) {
	_, err := GetTableSchema(context.Background(), &fakeGlue{err: errors.New("EntityNotFoundException")}, "ops", "nope")
	assert.EqualError(t, err, "glue GetTable ops.nope: EntityNotFoundException")

	_, err = GetTableSchema(context.Background(), &fakeGlue{out: &glue.GetTableOutput{}}, "ops", "nope")
	assert.ErrorContains(t, err, "empty table")
}
