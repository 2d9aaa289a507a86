package schema

import (
	"embed"
	"fmt"
)

//go:embed contracts/*.json
var contractsFS embed.FS

// Builtin returns the output contracts of the three TDLR review prompts.
func Builtin() []Schema {
	tasks := []TaskType{TaskCompleteness, TaskRisk, TaskFinal}
	out := make([]Schema, 0, len(tasks))
	for _, task := range tasks {
		doc, err := contractsFS.ReadFile(fmt.Sprintf("contracts/%s.json", task))
		if err != nil {
			panic(err)
		}
		out = append(out, Schema{Task: task, Document: doc})
	}
	return out
}
