package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/rollcall/internal/attendance"
)

// mustGetBool gets a bool flag value or panics if the flag doesn't exist.
// This is appropriate for flags defined in init() - errors indicate programming bugs.
func mustGetBool(cmd *cobra.Command, name string) bool {
	val, err := cmd.Flags().GetBool(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

// mustGetInt gets an int flag value or panics if the flag doesn't exist.
func mustGetInt(cmd *cobra.Command, name string) int {
	val, err := cmd.Flags().GetInt(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

// mustGetString gets a string flag value or panics if the flag doesn't exist.
func mustGetString(cmd *cobra.Command, name string) string {
	val, err := cmd.Flags().GetString(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

// mustGetStringSlice gets a string slice flag value or panics if the flag doesn't exist.
func mustGetStringSlice(cmd *cobra.Command, name string) []string {
	val, err := cmd.Flags().GetStringSlice(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

// addLectureFlags registers the flags that identify a lecture.
func addLectureFlags(cmd *cobra.Command) {
	cmd.Flags().String("class", "", "Class id (required)")
	cmd.Flags().String("date", "", "Lecture date as YYYY-MM-DD (defaults to today)")
	cmd.Flags().String("subject", "", "Subject (required)")
	cmd.Flags().String("class-type", "", "Class type, e.g. lecture or lab")
	cmd.Flags().String("faculty", "", "Faculty id (required)")
	cmd.Flags().String("faculty-name", "", "Faculty display name")
}

// lectureKeyFromFlags builds and validates the lecture key. An empty --date
// means today in local time.
func lectureKeyFromFlags(cmd *cobra.Command, now time.Time) (attendance.Key, error) {
	key := attendance.Key{
		ClassID:     mustGetString(cmd, "class"),
		Date:        mustGetString(cmd, "date"),
		Subject:     mustGetString(cmd, "subject"),
		ClassType:   mustGetString(cmd, "class-type"),
		FacultyID:   mustGetString(cmd, "faculty"),
		FacultyName: mustGetString(cmd, "faculty-name"),
	}.Normalize()
	if key.Date == "" {
		key.Date = now.Format("2006-01-02")
	}
	if err := key.Validate(); err != nil {
		return attendance.Key{}, err
	}
	return key, nil
}
