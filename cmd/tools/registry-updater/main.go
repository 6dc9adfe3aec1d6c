// cmd/tools/registry-updater/main.go
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"listing-workers/internal/models"
	"listing-workers/pkg/registry"
)

var registryPath string

func main() {
	addCmd := flag.NewFlagSet("add", flag.ExitOnError)
	flagCmd := flag.NewFlagSet("set-flag", flag.ExitOnError)
	valuesCmd := flag.NewFlagSet("add-values", flag.ExitOnError)
	aliasCmd := flag.NewFlagSet("add-alias", flag.ExitOnError)
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)

	for _, fs := range []*flag.FlagSet{addCmd, flagCmd, valuesCmd, aliasCmd, validateCmd} {
		fs.StringVar(&registryPath, "path", "configs/attribute-registry.json", "Path to registry file")
	}

	// add
	nameAdd := addCmd.String("name", "", "Attribute name (e.g., color)")
	fields := addCmd.String("fields", "", "Marketplace fields, comma separated (e.g., amazon=color_name,temu=colour)")
	flags := addCmd.String("flags", "", "Flags, comma separated (e.g., ChildOnly,Size)")
	maxLength := addCmd.Int("maxLength", 0, "Maximum value length, 0 for none")

	// set-flag
	nameFlag := flagCmd.String("name", "", "Attribute name")
	flagName := flagCmd.String("flag", "", "Flag name (e.g., NoAI)")
	clearFlag := flagCmd.Bool("clear", false, "Clear the flag instead of setting it")

	// add-values
	nameValues := valuesCmd.String("name", "", "Attribute name")
	scope := valuesCmd.String("scope", "", "Value scope marketplace|COUNTRY|lang[|category] (e.g., amazon|FR|fr)")
	values := valuesCmd.String("values", "", "Values, comma separated")

	// add-alias
	concept := aliasCmd.String("concept", "", "Concept (e.g., title)")
	fieldID := aliasCmd.String("field", "", "Field id to recognize for the concept")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "add":
		addCmd.Parse(os.Args[2:])
		if *nameAdd == "" || *fields == "" {
			fmt.Println("Error: name and fields are required for add.")
			addCmd.Usage()
			os.Exit(1)
		}
		attr, err := buildAttribute(*nameAdd, *fields, *flags, *maxLength)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		if err := edit(func(reg *registry.AttributeRegistry) error { return reg.AddAttribute(attr) }); err != nil {
			fmt.Printf("Error adding attribute: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Added attribute: %s\n", *nameAdd)

	case "set-flag":
		flagCmd.Parse(os.Args[2:])
		if *nameFlag == "" || *flagName == "" {
			fmt.Println("Error: name and flag are required for set-flag.")
			flagCmd.Usage()
			os.Exit(1)
		}
		f, err := models.ParseFlag(*flagName)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		if err := edit(func(reg *registry.AttributeRegistry) error { return reg.SetFlag(*nameFlag, f, !*clearFlag) }); err != nil {
			fmt.Printf("Error updating attribute: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Updated attribute %s, flag %s set=%t\n", *nameFlag, f, !*clearFlag)

	case "add-values":
		valuesCmd.Parse(os.Args[2:])
		if *nameValues == "" || *scope == "" || *values == "" {
			fmt.Println("Error: name, scope, and values are required for add-values.")
			valuesCmd.Usage()
			os.Exit(1)
		}
		vs, err := parseScope(*scope)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		list := splitList(*values)
		if err := edit(func(reg *registry.AttributeRegistry) error {
			return reg.AddPossibleValues(*nameValues, vs, list...)
		}); err != nil {
			fmt.Printf("Error adding values: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Added %d values to %s for %s\n", len(list), *nameValues, vs.Key())

	case "add-alias":
		aliasCmd.Parse(os.Args[2:])
		if *concept == "" || *fieldID == "" {
			fmt.Println("Error: concept and field are required for add-alias.")
			aliasCmd.Usage()
			os.Exit(1)
		}
		changed := false
		if err := edit(func(reg *registry.AttributeRegistry) error {
			changed = reg.AddAlias(models.Concept(*concept), models.NormalizeFieldID(*fieldID))
			return nil
		}); err != nil {
			fmt.Printf("Error adding alias: %v\n", err)
			os.Exit(1)
		}
		if !changed {
			fmt.Printf("Alias %s already known for %s\n", *fieldID, *concept)
			return
		}
		fmt.Printf("Added alias %s for %s\n", *fieldID, *concept)

	case "validate":
		validateCmd.Parse(os.Args[2:])
		reg, err := registry.LoadRegistry(registryPath)
		if err != nil {
			fmt.Printf("Registry validation failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Registry validation passed: %d attributes, alias table v%d.\n",
			len(reg.Attributes), reg.AliasTable().Version)

	case "help":
		fallthrough
	default:
		help()
	}
}

// edit loads the registry (or starts a new one), applies fn and saves.
func edit(fn func(*registry.AttributeRegistry) error) error {
	reg, err := registry.LoadRegistry(registryPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to load registry: %w", err)
		}
		reg = registry.New()
	}
	if err := fn(reg); err != nil {
		return err
	}
	return reg.Save(registryPath)
}

func buildAttribute(name, fields, flags string, maxLength int) (*models.Attribute, error) {
	attr := &models.Attribute{Name: name, Fields: make(map[string]models.FieldID), MaxLength: maxLength}
	for _, pair := range splitList(fields) {
		mkt, id, ok := strings.Cut(pair, "=")
		if !ok || mkt == "" || id == "" {
			return nil, fmt.Errorf("invalid field %q, want marketplace=field_id", pair)
		}
		attr.Fields[strings.ToLower(mkt)] = models.NormalizeFieldID(id)
	}
	for _, n := range splitList(flags) {
		f, err := models.ParseFlag(n)
		if err != nil {
			return nil, err
		}
		attr.Flags = attr.Flags.With(f)
	}
	return attr, nil
}

func parseScope(s string) (models.ValueScope, error) {
	parts := strings.Split(s, "|")
	if len(parts) < 3 || len(parts) > 4 {
		return models.ValueScope{}, fmt.Errorf("invalid scope %q, want marketplace|COUNTRY|lang[|category]", s)
	}
	vs := models.ValueScope{Marketplace: parts[0], Country: parts[1], Lang: parts[2]}
	if len(parts) == 4 {
		vs.Category = models.Category(strings.ToLower(parts[3]))
	}
	return vs, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func help() {
	fmt.Println("Attribute Registry Updater")
	fmt.Println("Usage:")
	fmt.Println("  registry-updater add -name <name> -fields <mkt=field,...> [-flags <Flag,...>] [-maxLength <n>]")
	fmt.Println("  registry-updater set-flag -name <name> -flag <Flag> [-clear]")
	fmt.Println("  registry-updater add-values -name <name> -scope <mkt|COUNTRY|lang[|category]> -values <v1,v2,...>")
	fmt.Println("  registry-updater add-alias -concept <concept> -field <field_id>")
	fmt.Println("  registry-updater validate [-path <file>]")
	fmt.Println("  registry-updater help")
}
