package permissions

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, raw []byte) PolicyDocument {
	t.Helper()
	var doc PolicyDocument
	require.NoError(t, json.Unmarshal(raw, &doc))
	return doc
}

func TestGeneratePolicyForAlerts(t *testing.T) {
	raw, err := GeneratePolicy([]string{HandlerAlerts})
	require.NoError(t, err)

	doc := decode(t, raw)
	assert.Equal(t, "2012-10-17", doc.Version)
	require.Len(t, doc.Statement, 1)
	assert.Equal(t, []string{"sns:Publish", "sts:GetCallerIdentity"}, doc.Statement[0].Action)
}

func TestGeneratePolicyForReportsCoversAthenaQueries(t *testing.T) {
	raw, err := GeneratePolicy([]string{HandlerReports})
	require.NoError(t, err)

	doc := decode(t, raw)
	require.Len(t, doc.Statement, 2)
	for _, action := range []string{
		"athena:StartQueryExecution",
		"glue:GetDatabase",
		"glue:GetTable",
		"glue:GetPartitions",
		"s3:GetBucketLocation",
		"s3:ListBucket",
		"s3:PutObject",
	} {
		assert.Contains(t, doc.Statement[0].Action, action)
	}
	assert.Contains(t, doc.Statement[1].Action, "logs:StartQuery")
}

func TestGeneratePolicyAllHandlers(t *testing.T) {
	raw, err := GeneratePolicy(nil)
	require.NoError(t, err)

	doc := decode(t, raw)
	require.Len(t, doc.Statement, 2)
	assert.Contains(t, doc.Statement[0].Action, "athena:StartQueryExecution")
	assert.Contains(t, doc.Statement[1].Action, "securityhub:BatchImportFindings")
	assert.Contains(t, doc.Statement[1].Action, "ec2:CreateTags")

	// Deduplicated.
	count := 0
	for _, a := range doc.Statement[0].Action {
		if a == "sts:AssumeRole" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestGeneratePolicyUnknownHandler(t *testing.T) {
	_, err := GeneratePolicy([]string{"billing"})
	assert.ErrorContains(t, err, `unknown handler "billing"`)
}
