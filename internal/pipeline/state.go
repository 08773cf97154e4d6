package pipeline

// BranchState is the lifecycle state of one platform branch. Branches advance
// strictly forward; the first failed step moves the branch to StateFailed and
// nothing in a branch retries.
type BranchState string

const (
	StatePending        BranchState = "pending"
	StateProvisioned    BranchState = "provisioned"
	StateDepsInstalled  BranchState = "dependencies-installed"
	StateBuilt          BranchState = "built"
	StateArchived       BranchState = "archived"
	StateUploaded       BranchState = "uploaded"
	StatePublished      BranchState = "published"
	StateSkippedPublish BranchState = "skipped-publish"
	StateDone           BranchState = "done"
	StateFailed         BranchState = "failed"
)

// Terminal reports whether a branch can advance no further.
func (s BranchState) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Step names in execution order.
const (
	StepCheckout  = "checkout"
	StepProvision = "provision"
	StepDeps      = "deps"
	StepBuild     = "build"
	StepArchive   = "archive"
	StepUpload    = "upload"
	StepPublish   = "publish"
)
