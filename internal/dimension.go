package internal

// Dimension is a groupable attribute exposed to requests under its API name.
type Dimension struct {
	APIName     string `json:"name"`
	LongName    string `json:"longName,omitempty"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
}

// DimensionConfig binds a dimension to the column that stores it in one
// physical table.
type DimensionConfig struct {
	APIName      string `json:"name"`
	PhysicalName string `json:"physicalName"`
}
