package cmd

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"louyass/core"
	"louyass/service"
	"louyass/storage"

	"github.com/spf13/cobra"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

//go:embed seed_schema.json
var seedSchema []byte

// Fixtures is the content of a seed file. Houses reference their owner by
// e-mail; the owner may be created by the same file.
type Fixtures struct {
	Users  []FixtureUser  `yaml:"users" json:"users"`
	Houses []FixtureHouse `yaml:"houses" json:"houses"`
}

// FixtureUser is one account to create
type FixtureUser struct {
	Email     string    `yaml:"email"`
	Password  string    `yaml:"password"`
	Nom       string    `yaml:"nom"`
	Prenom    string    `yaml:"prenom"`
	Telephone string    `yaml:"telephone"`
	Role      core.Role `yaml:"role"`
}

// FixtureHouse is a house with its rooms
type FixtureHouse struct {
	Owner       string        `yaml:"owner"`
	Nom         string        `yaml:"nom"`
	Adresse     string        `yaml:"adresse"`
	Ville       string        `yaml:"ville"`
	Superficie  float64       `yaml:"superficie"`
	Latitude    *float64      `yaml:"latitude"`
	Longitude   *float64      `yaml:"longitude"`
	Description string        `yaml:"description"`
	Rooms       []FixtureRoom `yaml:"rooms"`
}

// FixtureRoom is one room of a fixture house
type FixtureRoom struct {
	Titre       string        `yaml:"titre"`
	Description string        `yaml:"description"`
	Type        core.RoomType `yaml:"type"`
	Taille      float64       `yaml:"taille"`
	Meublee     bool          `yaml:"meublee"`
	Prix        float64       `yaml:"prix"`
	Capacite    int           `yaml:"capacite"`
	SalleDeBain bool          `yaml:"salle_de_bain"`
	Disponible  *bool         `yaml:"disponible"`
}

// SeedResult counts what a seed run inserted
type SeedResult struct {
	UsersCreated  int `json:"users_created"`
	UsersSkipped  int `json:"users_skipped"`
	HousesCreated int `json:"houses_created"`
	RoomsCreated  int `json:"rooms_created"`
}

// LoadFixtures parses and validates a fixtures document
func LoadFixtures(data []byte) (*Fixtures, error) {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse fixtures: %w", err)
	}
	if doc == nil {
		return nil, errors.New("fixtures file is empty")
	}

	result, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(seedSchema), gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("failed to validate fixtures against schema: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("fixtures validation failed: %s", strings.Join(msgs, "; "))
	}

	var fx Fixtures
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("failed to decode fixtures: %w", err)
	}
	return &fx, nil
}

// seed inserts fixtures. Users whose e-mail already exists are reused.
func (env *adminEnv) seed(cmd *cobra.Command, fx *Fixtures) (*SeedResult, error) {
	ctx, cancel := commandContext()
	defer cancel()

	res := &SeedResult{}
	for _, fu := range fx.Users {
		_, err := env.userSvc.Register(ctx, service.UserCreate{
			Email:     fu.Email,
			Password:  fu.Password,
			Nom:       fu.Nom,
			Prenom:    fu.Prenom,
			Telephone: fu.Telephone,
			Role:      fu.Role,
		})
		if err != nil {
			if _, lookupErr := env.users.GetUserByEmail(ctx, fu.Email); lookupErr == nil {
				res.UsersSkipped++
				continue
			}
			return res, fmt.Errorf("user %s: %s", fu.Email, describeError(err))
		}
		res.UsersCreated++
	}

	for _, fh := range fx.Houses {
		owner, err := env.users.GetUserByEmail(ctx, fh.Owner)
		if errors.Is(err, storage.ErrUserNotFound) {
			return res, fmt.Errorf("house %q: owner %s does not exist", fh.Nom, fh.Owner)
		}
		if err != nil {
			return res, err
		}

		house, err := env.houseSvc.Create(ctx, owner, service.HouseInput{
			Nom:         fh.Nom,
			Adresse:     fh.Adresse,
			Ville:       fh.Ville,
			Superficie:  fh.Superficie,
			Latitude:    fh.Latitude,
			Longitude:   fh.Longitude,
			Description: fh.Description,
		})
		if err != nil {
			return res, fmt.Errorf("house %q: %s", fh.Nom, describeError(err))
		}
		res.HousesCreated++

		for _, fr := range fh.Rooms {
			_, err := env.roomSvc.Create(ctx, owner, service.RoomInput{
				MaisonID:    house.ID,
				Titre:       fr.Titre,
				Description: fr.Description,
				Taille:      fr.Taille,
				Type:        fr.Type,
				Meublee:     fr.Meublee,
				Prix:        fr.Prix,
				Capacite:    fr.Capacite,
				SalleDeBain: fr.SalleDeBain,
				Disponible:  fr.Disponible,
			})
			if err != nil {
				return res, fmt.Errorf("room %q of %q: %s", fr.Titre, fh.Nom, describeError(err))
			}
			res.RoomsCreated++
		}
		if !quiet && !outputJSON {
			infoColor.Fprintf(cmd.OutOrStdout(), "  %s: %d room(s)\n", fh.Nom, len(fh.Rooms))
		}
	}
	return res, nil
}

func newSeedCmd() *cobra.Command {
	var file string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load users, houses and rooms from a YAML fixtures file",
		Example: `  louyass admin seed --file fixtures.yaml
  louyass admin seed --file fixtures.yaml --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFilePath(file); err != nil {
				return err
			}
			info, err := os.Stat(file)
			if err != nil {
				return fmt.Errorf("failed to read fixtures: %w", err)
			}
			if info.Size() > maxImportFileSize {
				return fmt.Errorf("fixtures file too large: %d bytes (max %d)", info.Size(), maxImportFileSize)
			}
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("failed to read fixtures: %w", err)
			}

			fx, err := LoadFixtures(data)
			if err != nil {
				errorColor.Fprintf(cmd.ErrOrStderr(), "✗ %v\n", err)
				return err
			}
			if dryRun {
				successColor.Fprintf(cmd.OutOrStdout(), "✓ %s is valid: %d user(s), %d house(s)\n", file, len(fx.Users), len(fx.Houses))
				return nil
			}

			env, cleanup, err := initEnv()
			if err != nil {
				return err
			}
			defer cleanup()

			res, err := env.seed(cmd, fx)
			if err != nil {
				errorColor.Fprintf(cmd.ErrOrStderr(), "✗ %v\n", err)
				return err
			}
			if outputJSON {
				return outputAsJSON(cmd.OutOrStdout(), res)
			}
			successColor.Fprintf(cmd.OutOrStdout(), "✓ Seeded %d user(s) (%d existing), %d house(s), %d room(s)\n",
				res.UsersCreated, res.UsersSkipped, res.HousesCreated, res.RoomsCreated)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Fixtures file (required)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Validate the file without writing")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
