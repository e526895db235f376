package main

// Starter configs written by `fitsched init`.

const starterGoalsYAML = `# fitsched training goals
weekly_structure:
  swim_sessions: 0
  bike_sessions: 1
  run_sessions: 2
  strength_sessions: 3

preferences:
  preferred_workout_time: flexible   # morning | evening | flexible
  morning_hours: [6, 9]
  evening_hours: [17, 20]
  user_timezone: America/Chicago

# Events whose summary contains any of these are never touched.
protected_keywords:
  - interview
  - flight

safety:
  max_mutations_per_cycle: 8
  min_notice_hours: 2

planner:
  horizon_days: 3
  discipline_priority: [strength, run, bike, swim]
  training_load_ceiling: 300

llm:
  concurrency: 2
  models:
    - name: llama3.1
      provider: ollama
      base_url: http://localhost:11434
      timeout_seconds: 120
    - name: gpt-4o-mini
      provider: openai
      timeout_seconds: 30
`

const starterTemplatesYAML = `# fitsched workout templates, one recipe per discipline
disciplines:
  run:
    warmup: 10 min easy jog with 4x20s strides
    cooldown: 5 min walk, light leg stretching
    main_sets:
      normal:
        description: 40 min steady run, conversational pace
        duration_minutes: 55
        target_zone: Zone 2 (130-145 bpm)
      reduced:
        description: 25 min easy run, walk breaks as needed
        duration_minutes: 40
        target_zone: Zone 1-2 (<135 bpm)
      backup:
        description: 20 min brisk walk or walk-jog
        duration_minutes: 30
        target_zone: Zone 1
  bike:
    warmup: 10 min easy spin, high cadence
    cooldown: 5 min easy spin
    main_sets:
      normal:
        description: 45 min endurance ride with 3x5 min tempo
        duration_minutes: 60
        target_zone: Zone 2-3
      reduced:
        description: 30 min easy spin, flat route
        duration_minutes: 45
        target_zone: Zone 1-2
      backup:
        description: 20 min recovery spin
        duration_minutes: 30
        target_zone: Zone 1
  swim:
    warmup: 200m easy freestyle, 4x50m drills
    cooldown: 100m easy backstroke
    main_sets:
      normal:
        description: Main set 10x100m freestyle on 20s rest
        duration_minutes: 50
      reduced:
        description: Main set 6x100m freestyle on 30s rest
        duration_minutes: 40
      backup:
        description: 600m continuous easy swim, any stroke
        duration_minutes: 30
  strength:
    warmup: 5 min row or bike, dynamic mobility
    cooldown: 5 min stretching, focus on worked muscles
    main_sets:
      normal:
        description: Squat 4x6, bench 4x6, row 4x8, core circuit
        duration_minutes: 60
      reduced:
        description: Squat 3x8 light, push-ups 3x12, row 3x10
        duration_minutes: 45
      backup:
        description: Bodyweight circuit of squats, push-ups, planks, 3 rounds
        duration_minutes: 30
`
