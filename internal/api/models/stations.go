package models

// StationsQuery holds the query parameters of GET /stations.
type StationsQuery struct {
	Name      string   `validate:"max=256"`
	Countries []string `validate:"max=64,dive,alpha,min=2,max=3"`
}

// RouteQuery holds the query parameters of GET /route.
type RouteQuery struct {
	Dep      string `validate:"required,max=64"`
	Arr      string `validate:"required,max=64"`
	Simplify bool
}
