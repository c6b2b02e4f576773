package mindsql

import (
	"fmt"
	"strings"
)

// JobSpec describes CREATE JOB.
type JobSpec struct {
	// Project qualifies Name unless Name is already dotted.
	Project     string
	Name        string
	IfNotExists bool
	Statements  []string
	Start       string
	End         string
	// Schedule is an interval such as "1 hour" or "every 2 days".
	Schedule    string
	IfCondition string
}

// CreateJob builds CREATE JOB.
func CreateJob(spec JobSpec) (string, error) {
	if strings.TrimSpace(spec.Name) == "" {
		return "", fmt.Errorf("job name is required")
	}

	var stmts []string
	for _, s := range spec.Statements {
		s = strings.TrimRight(strings.TrimSpace(s), ";")
		if s != "" {
			stmts = append(stmts, indent(s))
		}
	}
	if len(stmts) == 0 {
		return "", fmt.Errorf("job %q needs at least one statement", spec.Name)
	}

	var b strings.Builder
	b.WriteString("CREATE JOB ")
	if spec.IfNotExists {
		b.WriteString("IF NOT EXISTS ")
	}
	fmt.Fprintf(&b, "%s (\n    %s\n)", Qualified(spec.Project, spec.Name), strings.Join(stmts, ";\n    "))

	if spec.Start != "" {
		ts, err := NormalizeTimestamp(spec.Start)
		if err != nil {
			return "", fmt.Errorf("start: %w", err)
		}
		fmt.Fprintf(&b, "\nSTART %s", Quote(ts))
	}
	if spec.End != "" {
		ts, err := NormalizeTimestamp(spec.End)
		if err != nil {
			return "", fmt.Errorf("end: %w", err)
		}
		fmt.Fprintf(&b, "\nEND %s", Quote(ts))
	}
	if every := NormalizeSchedule(spec.Schedule); every != "" {
		b.WriteString("\n" + every)
	}
	if cond := strings.TrimRight(strings.TrimSpace(spec.IfCondition), ";"); cond != "" {
		fmt.Fprintf(&b, "\nIF (\n    %s\n)", indent(cond))
	}
	b.WriteString(";")
	return b.String(), nil
}

// DropJob builds DROP JOB.
func DropJob(project, name string) string {
	return fmt.Sprintf("DROP JOB %s;", Qualified(project, name))
}

// ListJobs lists the jobs of a project.
func ListJobs(project string) string {
	return fmt.Sprintf("SELECT * FROM %s;", Qualified(project, "jobs"))
}

// JobStatus selects one job's row from the project's jobs table.
func JobStatus(project, name string) string {
	return fmt.Sprintf("SELECT * FROM %s WHERE name = %s;", Qualified(project, "jobs"), Quote(name))
}

// JobHistory selects recent runs of a job, newest first.
func JobHistory(project, name string, limit int) string {
	return fmt.Sprintf("SELECT *\nFROM log.jobs_history\nWHERE project = %s AND name = %s\nORDER BY run_start DESC%s;",
		Quote(project), Quote(name), limitClause(limit))
}

// JobLogs selects runs of a job that reported an error, newest first.
func JobLogs(project, name string, limit int) string {
	return fmt.Sprintf("SELECT run_start, run_end, error, query\nFROM log.jobs_history\nWHERE project = %s AND name = %s AND error IS NOT NULL\nORDER BY run_start DESC%s;",
		Quote(project), Quote(name), limitClause(limit))
}

func limitClause(limit int) string {
	if limit <= 0 {
		return ""
	}
	return fmt.Sprintf("\nLIMIT %d", limit)
}

func indent(s string) string {
	return strings.ReplaceAll(s, "\n", "\n    ")
}
