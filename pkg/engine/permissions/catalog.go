package permissions

// Handler names accepted by GeneratePolicy.
const (
	HandlerReports = "reports"
	HandlerAlerts  = "alerts"
	HandlerTagger  = "tagger"
	HandlerMonitor = "monitor"
)

// Catalog maps each handler to the IAM actions its own execution role needs.
var Catalog = map[string][]string{
	HandlerReports: {
		"athena:GetNamedQuery",
		"athena:StartQueryExecution",
		"athena:GetQueryExecution",
		"glue:GetDatabase", // Athena resolves tables through the Glue catalog
		"glue:GetTable",
		"glue:GetPartitions",
		"s3:GetBucketLocation", // query output and source buckets
		"s3:ListBucket",
		"s3:GetObject", // presigned result links
		"s3:PutObject",
		"sns:Publish",
		"sts:AssumeRole", // logs and identity store accounts
	},
	HandlerAlerts: {
		"sns:Publish",
	},
	HandlerTagger: {
		"sts:AssumeRole",
	},
	HandlerMonitor: {
		"sts:AssumeRole",
		"sns:Publish",
	},
}

// CrossAccountCatalog lists the actions the assumed roles need in member accounts.
var CrossAccountCatalog = map[string][]string{
	HandlerReports: {
		"logs:StartQuery",
		"logs:GetQueryResults",
		"identitystore:ListUsers",
	},
	HandlerTagger: {
		"ec2:CreateTags",
		"rds:AddTagsToResource",
	},
	HandlerMonitor: {
		"ec2:DescribeInstances",
		"rds:DescribeDBInstances",
		"rds:ListTagsForResource",
		"securityhub:BatchImportFindings",
		"cloudtrail:LookupEvents",
		"cloudwatch:PutMetricData",
	},
}

// CorePermissions returns the permissions every handler needs to boot.
func CorePermissions() []string {
	return []string{
		"sts:GetCallerIdentity",
	}
}
