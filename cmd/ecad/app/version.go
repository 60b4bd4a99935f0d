package app

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/eclipse-opendut/opendut-go/pkg/buildinfo"
	"github.com/eclipse-opendut/opendut-go/pkg/log"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "ecad version",
		Run: func(cmd *cobra.Command, args []string) {
			data, err := json.Marshal(map[string]string{
				"Version":   buildinfo.Version,
				"GitSHA":    buildinfo.GitSHA,
				"GoVersion": buildinfo.GoVersion,
				"Date":      buildinfo.Date,
			})
			if err != nil {
				log.Fatalf("version: %v", err)
			}
			fmt.Printf("%s\n", data)
		},
	}
}
