package models

// Workflow identifies a response-producing workflow.
type Workflow string

const (
	WorkflowChat             Workflow = "chat"
	WorkflowRepoAnalysis     Workflow = "repo_analysis"
	WorkflowConfigGeneration Workflow = "config_generation"
	WorkflowDeployValidation Workflow = "deploy_validation"
)
