package model

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// RunRecord is the persisted description of one reptation run.
type RunRecord struct {
	VersionedRecord
	ID            string     `json:"id"`
	CreatedAtUTC  string     `json:"created_at_utc"`
	System        string     `json:"system"`
	Particles     int        `json:"particles"`
	Replicas      int        `json:"replicas"`
	ReptileLength int        `json:"reptile_length"`
	Timestep      float64    `json:"timestep"`
	Blocks        int        `json:"blocks"`
	Steps         int        `json:"steps"`
	ERef          float64    `json:"eref"`
	EnergyCutoff  float64    `json:"energy_cutoff"`
	Seed          int64      `json:"seed"`
	Finished      bool       `json:"finished"`
	Estimates     []Estimate `json:"estimates,omitempty"`
}

// BlockRecord holds the statistics one replica produced for one block.
type BlockRecord struct {
	Replica          int        `json:"replica"`
	Block            int        `json:"block"`
	Path             Properties `json:"path"`
	Center           Properties `json:"center"`
	BranchingMean    float64    `json:"branching_mean"`
	AcceptanceRatio  float64    `json:"acceptance_ratio"`
	NumericalRejects int        `json:"numerical_rejects"`
	Diffusion        float64    `json:"diffusion"`
	Steps            int        `json:"steps"`
}

// Estimate is a final mean and standard error for one named property.
type Estimate struct {
	Name    string  `json:"name"`
	Mean    float64 `json:"mean"`
	Error   float64 `json:"error"`
	Samples int     `json:"samples"`
}

// CheckpointRecord stores an encoded checkpoint next to its run.
type CheckpointRecord struct {
	VersionedRecord
	RunID string `json:"run_id"`
	// Block is the number of blocks finished when the checkpoint was taken.
	Block   int    `json:"block"`
	Payload []byte `json:"payload"`
}
