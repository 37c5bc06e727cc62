package units

import (
	"github.com/ShayCichocki/forge/pkg/models"
)

// unitSystemPrompt frames every generation request.
const unitSystemPrompt = `You are one stage of a code generation pipeline. Earlier stages have already
produced parts of the project; their recorded output is included as context. Produce only the files
your stage owns and keep names consistent with the context you are given.`

// unitPrompt is the prompt template for a generation unit.
// Arguments: stage instructions, project name, project description, database,
// task description, completed task ids, existing file paths, context JSON.
const unitPrompt = `Stage instructions:
%s

Project: %s
Description: %s
Database: %s

Task: %s

Completed stages: %s
Files already generated:
%s

Context from earlier stages (JSON):
%s

Return ONLY a JSON object with this exact structure (no other text):
{
  "files": [{"path": "relative/path.ext", "content": "file contents"}],
  "env": ["ENV_VAR_NAME"],
  "summary": "one sentence describing what was produced"
}

Rules:
- Paths are relative to the project root and must not start with / or contain ..
- List every environment variable your files read in "env"
- Do not regenerate files owned by earlier stages`

// stageInstructions describes what each built-in unit type owns.
var stageInstructions = map[models.UnitType]string{
	models.UnitData: `Design the data layer: schema, migrations, and data-access models for the
configured database. Later stages build on these names, so choose them carefully.`,
	models.UnitAuth: `Implement authentication and authorization on top of the data layer: user
model extensions, password hashing or token handling, session or JWT middleware.`,
	models.UnitCore: `Implement the business logic and API handlers using the data layer and, if
present, the auth middleware.`,
	models.UnitUI: `Implement the user interface against the API produced by the core stage.`,
	models.UnitIntegrations: `Implement the requested third-party integrations as isolated client
modules called from the core logic.`,
	models.UnitDeploy: `Produce deployment configuration (container build, compose or manifests, CI
workflow) for everything generated so far.`,
}
