package planner

// planningSystemPrompt frames the oracle as a planner, not a generator.
const planningSystemPrompt = `You plan multi-stage code generation runs. You never write code yourself; you only
decide which generation stages run and in which order. Reply with JSON only.`

// planningPrompt is the prompt template for execution planning.
// Arguments: unit type list, project JSON.
const planningPrompt = `Plan the generation stages for the project below.

Available unit types (use ONLY these, exactly as written):
%s

Ordering rules:
- "data" (the data layer) runs before everything else
- "auth" runs after "data" and before "core"; omit it if authentication is disabled
- "core" (business logic and API) runs after "auth", or after "data" when auth is omitted
- "ui" and "integrations" run after "core" and may run in parallel with each other
- omit "ui" if the UI is disabled and "integrations" if no integrations are requested
- "deploy" runs last, after every other stage; omit it if deployment is disabled

Project:
%s

Return ONLY a JSON array of tasks with this exact structure (no other text):
[
  {
    "id": "short-unique-id",
    "type": "one of the unit types above",
    "description": "What this stage must produce for this project",
    "depends_on": ["id of a task that must finish first"],
    "priority": 10
  }
]

Guidelines:
- Every id must be unique
- depends_on may only reference ids from this array
- Use an empty array [] for depends_on if there are no dependencies
- Higher priority runs first when several tasks are ready at once`
