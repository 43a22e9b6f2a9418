package main

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
)

// SQLGenerationPromptName is the single prompt the server exposes.
const SQLGenerationPromptName = "sql_generation_prompt"

const sqlPromptTemplate = `You are helping to write SQL queries for a PostgreSQL database. Here is the current database structure:

%s

Please use this information to write accurate SQL queries. When suggesting queries:
1. Use the correct schema and table names
2. Reference actual column names (use the describe_table tool if needed)
3. Follow PostgreSQL syntax
4. Consider data types and constraints
5. Suggest appropriate JOINs based on foreign key relationships

What SQL query would you like help with?`

// renderSQLGenerationPrompt embeds the serialized database overview
// verbatim into the fixed instructional template.
func renderSQLGenerationPrompt(overview []SchemaOverview) (string, error) {
	payload, err := json.MarshalIndent(overview, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "marshal overview")
	}
	return fmt.Sprintf(sqlPromptTemplate, payload), nil
}
