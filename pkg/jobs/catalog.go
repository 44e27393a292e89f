package jobs

// DefaultCatalog returns the production jobs.
func DefaultCatalog() Catalog {
	return Catalog{
		{
			Name:     "go_pull_taxonomy_data_bor",
			Kind:     KindTaxonomy,
			BaseURL:  DefaultBaseURL,
			CaseType: "borgersager",
			Flat:     &FlatPull{ViewID: "f8f14409-e2f6-452f-aeac-acc18b3e6b5c"},
		},
		{
			Name:     "go_pull_taxonomy_data_emn",
			Kind:     KindTaxonomy,
			BaseURL:  DefaultBaseURL,
			CaseType: "emnesager",
			Flat:     &FlatPull{ViewID: "db7f8be3-a3cb-4ea2-b495-7eba638f3fc7"},
		},
		{
			Name:     "go_pull_term_data_case_profile_bor",
			Kind:     KindTerm,
			BaseURL:  DefaultBaseURL,
			CaseType: "borgersager",
			Tree: &HierarchicalPull{
				StoredProcedure: "GO_CaseProfiles_Insert",
				ObjectType:      "case profiles",
				StartTermID:     "dc87e41a-cab3-4286-8a1b-72ba6368cb90",
				TermSetID:       "8adfc3ee-428f-47fb-80aa-c285c28d3d93",
			},
		},
		{
			Name:     "go_pull_term_data_case_profile_emn",
			Kind:     KindTerm,
			BaseURL:  DefaultBaseURL,
			CaseType: "emnesager",
			Tree: &HierarchicalPull{
				StoredProcedure: "GO_CaseProfiles_Insert",
				ObjectType:      "case profiles",
				StartTermID:     "9cd80176-977f-4d4b-9073-7bfb9361afe0",
				TermSetID:       "b52da1e5-209d-4ed6-b923-6d590072aa49",
			},
		},
		{
			Name:     "go_pull_term_data_departments",
			Kind:     KindTerm,
			BaseURL:  DefaultBaseURL,
			CaseType: "emnesager",
			Tree: &HierarchicalPull{
				StoredProcedure: "GO_Departments_Insert",
				ObjectType:      "departments",
				StartTermID:     "3239f2cb-1cac-4f10-8897-39d64127a2e2",
				TermSetID:       "62c5a7cc-eb6f-4704-a86f-c576c4bebcca",
			},
		},
	}
}
