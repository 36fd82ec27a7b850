package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
)

func jsonContent(schema interface{}) map[string]interface{} {
	return map[string]interface{}{
		"application/json": map[string]interface{}{"schema": schema},
	}
}

func ref(name string) map[string]string {
	return map[string]string{"$ref": "#/components/schemas/" + name}
}

func nameParam() map[string]interface{} {
	return map[string]interface{}{
		"name":        "name",
		"in":          "path",
		"description": "Latin name, common name or alias (case and spacing insensitive)",
		"required":    true,
		"schema":      map[string]string{"type": "string"},
	}
}

func errorResponses(codes ...int) map[string]interface{} {
	out := make(map[string]interface{}, len(codes))
	for _, code := range codes {
		out[strconv.Itoa(code)] = map[string]interface{}{
			"description": http.StatusText(code),
			"content":     jsonContent(ref("Error")),
		}
	}
	return out
}

func withOK(description string, schema interface{}, errs map[string]interface{}) map[string]interface{} {
	errs["200"] = map[string]interface{}{
		"description": description,
		"content":     jsonContent(schema),
	}
	return errs
}

// OpenAPISpec returns the OpenAPI 3.0 specification for the SRF carbon API
func OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	number := map[string]string{"type": "number"}
	integer := map[string]string{"type": "integer"}
	str := map[string]string{"type": "string"}

	parameters := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"scale":  number,
			"rate":   number,
			"offset": number,
			"shift":  number,
		},
	}
	point := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"age":  number,
			"rate": map[string]interface{}{"type": "number", "description": "Mean annual increment in m³/ha/yr"},
		},
	}

	spec := map[string]interface{}{
		"openapi": "3.0.0",
		"info": map[string]interface{}{
			"title":       "SRF Carbon API",
			"description": "Short rotation forestry growth curves, coppicing woodland simulation and biochar revenue",
			"version":     "1.0.0",
			"contact": map[string]string{
				"name": "SRF Carbon Team",
			},
		},
		"servers": []map[string]string{
			{"url": "http://localhost:8080", "description": "Local development server"},
		},
		"paths": map[string]interface{}{
			"/api/species": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "List species",
					"description": "Every species of the catalog with its growth curve",
					"responses": withOK("Species catalog", map[string]interface{}{
						"type":  "array",
						"items": ref("Species"),
					}, map[string]interface{}{}),
				},
			},
			"/api/species/{name}": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":    "Get a species",
					"parameters": []interface{}{nameParam()},
					"responses":  withOK("Species", ref("Species"), errorResponses(http.StatusNotFound, http.StatusUnprocessableEntity)),
				},
			},
			"/api/species/{name}/curve": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Sample a MAI curve",
					"description": "Mean annual increment from age 0 to max_age in steps of step",
					"parameters": []interface{}{
						nameParam(),
						map[string]interface{}{
							"name":   "max_age",
							"in":     "query",
							"schema": map[string]interface{}{"type": "number", "default": defaultCurveMaxAge},
						},
						map[string]interface{}{
							"name":   "step",
							"in":     "query",
							"schema": map[string]interface{}{"type": "number", "default": defaultCurveStep},
						},
					},
					"responses": withOK("Curve samples", map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"species":    str,
							"parameters": ref("Parameters"),
							"points": map[string]interface{}{
								"type": "array",
								"items": map[string]interface{}{
									"type":       "object",
									"properties": map[string]interface{}{"age": number, "mai": number},
								},
							},
						},
					}, errorResponses(http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity)),
				},
			},
			"/api/species/{name}/fit": map[string]interface{}{
				"post": map[string]interface{}{
					"summary":     "Fit a growth curve",
					"description": "Least-squares fit of the logarithmic MAI curve; store replaces the species data",
					"parameters":  []interface{}{nameParam()},
					"requestBody": map[string]interface{}{
						"required": true,
						"content": jsonContent(map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"points": map[string]interface{}{"type": "array", "items": ref("Point")},
								"store":  map[string]string{"type": "boolean"},
							},
						}),
					},
					"responses": withOK("Fitted curve", map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"species":                 str,
							"parameters":              ref("Parameters"),
							"iterations":              integer,
							"evaluations":             integer,
							"residual_sum_of_squares": number,
							"cached":                  map[string]string{"type": "boolean"},
							"stored":                  map[string]string{"type": "boolean"},
						},
					}, errorResponses(http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity)),
				},
			},
			"/api/simulations": map[string]interface{}{
				"post": map[string]interface{}{
					"summary":     "Simulate a woodland",
					"description": "Runs a stochastic coppicing simulation and prices the biochar. Omitted fields use the default scenario.",
					"requestBody": map[string]interface{}{
						"required": false,
						"content": jsonContent(map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"seed":           integer,
								"area_ha":        number,
								"footprint_ha":   number,
								"footprint_m2":   number,
								"rotation_years": number,
								"horizon_years":  integer,
								"mix": map[string]interface{}{
									"type": "array",
									"items": map[string]interface{}{
										"type":       "object",
										"properties": map[string]interface{}{"species": str, "fraction": number},
									},
								},
								"processing": ref("Processing"),
							},
						}),
					},
					"responses": withOK("Simulation result", map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"run_id":     map[string]string{"type": "string", "format": "uuid"},
							"seed":       integer,
							"processing": ref("Processing"),
							"years": map[string]interface{}{
								"type": "array",
								"items": map[string]interface{}{
									"type": "object",
									"properties": map[string]interface{}{
										"year":       integer,
										"biomass":    map[string]interface{}{"type": "number", "description": "Biochar tonnes harvested"},
										"harvested":  integer,
										"net_income": number,
									},
								},
							},
						},
					}, errorResponses(http.StatusBadRequest, http.StatusUnprocessableEntity, http.StatusTooManyRequests, http.StatusServiceUnavailable)),
				},
			},
			"/health": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Health check",
					"description": "Check if the API and its database are reachable",
					"responses": map[string]interface{}{
						"200": map[string]interface{}{
							"description": "API is healthy",
							"content": jsonContent(map[string]interface{}{
								"type":       "object",
								"properties": map[string]interface{}{"status": str, "database": str},
							}),
						},
					},
				},
			},
			"/metrics": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Prometheus metrics",
					"description": "Prometheus metrics endpoint for monitoring",
					"responses": map[string]interface{}{
						"200": map[string]interface{}{
							"description": "Prometheus metrics in text format",
							"content": map[string]interface{}{
								"text/plain": map[string]interface{}{
									"schema": str,
								},
							},
						},
					},
				},
			},
		},
		"components": map[string]interface{}{
			"schemas": map[string]interface{}{
				"Parameters": parameters,
				"Point":      point,
				"Species": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"name":              str,
						"common_name":       str,
						"aliases":           map[string]interface{}{"type": "array", "items": str},
						"conversion_factor": number,
						"parameters":        ref("Parameters"),
						"points":            map[string]interface{}{"type": "array", "items": ref("Point")},
						"mai_at_age_0":      number,
					},
				},
				"Processing": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"credit_per_co2_tonne":     number,
						"pyrolysis_cost_per_tonne": number,
						"resale_per_tonne":         number,
						"land_per_tonne":           number,
						"land_value_per_ha":        number,
					},
				},
				"Error": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"error":       str,
						"message":     str,
						"code":        integer,
						"field":       str,
						"suggestions": map[string]interface{}{"type": "array", "items": str},
					},
				},
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(spec)
}
